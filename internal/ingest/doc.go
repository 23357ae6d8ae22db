// Package ingest implements the download step: streaming the episode
// enclosure through the artifact store so the original audio lands
// atomically, recording its checksum on the episode, and probing ID3 tags
// for metadata enrichment.
package ingest
