// Package materials derives Irish-language learning materials from a
// normalized episode transcript: vocabulary glosses, practice exercises, and
// a dialect feature card.
package materials
