// Package rag implements retrieval-augmented generation over podcast
// transcripts.
//
// The ingestion path splits a transcript into overlapping chunks, embeds
// each chunk and stores content plus vector in a chunk store:
//
//	transcript --> Chunker --> Embedder --> ChunkStore
//
// The query path embeds the question, runs a similarity search scoped to
// one episode and grounds the model's answer on the retrieved chunks:
//
//	question --> Embedder --> ChunkStore.Search --> Generator
//
// Pipeline ties both paths together and tracks per-episode ingestion
// state. Two ChunkStore implementations exist: PostgresChunkStore
// (pgvector) and MemoryChunkStore for running without a database.
package rag
