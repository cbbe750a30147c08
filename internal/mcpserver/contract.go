package mcpserver

// LectureFormatContract describes the transcription format that LLM
// consumers should follow when writing a lecture's transcription.
const LectureFormatContract = `# Lectern Transcription Format

A lecture transcription is Markdown. Exports render it line by line, so the
structure below controls how PDF and DOCX files look.

## Structure

` + "```" + `markdown
---
summary: One or two sentences.      # OPTIONAL – stored as the lecture summary
topics:                             # OPTIONAL – stored as related topics
  - Neural networks
  - Gradient descent
---

# Lecture title

## Introduction

Plain paragraphs, one per line.

## Key Points

- Bullet items start with "- " or "* ".
` + "```" + `

## Rules

1. **Frontmatter is optional.** When present, the ` + "```" + `---` + "```" + ` fences must be the
   first thing in the content. Only ` + "`" + `summary` + "`" + ` and ` + "`" + `topics` + "`" + ` are read.
2. **Headings** use ` + "`" + `#` + "`" + ` to ` + "`" + `######` + "`" + `. Level 1 is the document title; level 2
   sections are used to build a summary when none is given.
3. **Topics** are short noun phrases (at most 60 characters, at most 8 topics).
4. **Encoding** is UTF-8. No HTML.
5. **Replacing** a transcription overwrites the previous one. Summary and topics
   are only changed when the frontmatter carries them.

## Recordings

- Import audio with the ` + "`" + `import_recording` + "`" + ` tool. It accepts a base64 ` + "`" + `data:` + "`" + ` URI
  or an http(s) URL.
- Supported formats: webm, ogg, wav, mpeg, mp4.
- Start transcription with ` + "`" + `transcribe_lecture` + "`" + ` and poll ` + "`" + `get_job` + "`" + `.
`
