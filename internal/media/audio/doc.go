// Package audio validates downloaded episode audio before it enters the
// conversion and transcription stages, and summarizes probe results for
// logs and processing history. Validation failures are permanent: once a
// download completes, a broken container stays broken.
package audio
