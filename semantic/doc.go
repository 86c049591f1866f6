// Copyright 2026 AgentFlow Authors
// Use of this source code is governed by the project license.

/*
Package semantic maps an invalid enum value to the closest allowed value by
embedding similarity.

# Overview

[Matcher.Match] embeds the invalid value and every allowed value, picks the
allowed value with the strictly highest cosine similarity and accepts it
when the similarity reaches the threshold (0.85 by default). Embedding
failures never surface as errors: the result is simply not accepted.

[Cache] is the only state shared between pipeline runs. Vectors are keyed by
the raw string, loaded once, and never invalidated for the life of the
process. Concurrent misses of the same key collapse into one embedding call,
and an optional [VectorStore] lets several processes share warmed vectors.
Call [Cache.Warmup] once at process start with every known enum value.
*/
package semantic
