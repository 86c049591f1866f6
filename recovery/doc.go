// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package recovery implements the LLM-backed recovery strategies of the
regeneration pipeline.

Every strategy shares one contract: given the original prompt, the
candidate output that failed validation and its violations, it makes at
most one LLM call and returns new candidate text together with the token
cost of that call. Strategies never validate their own output; the
orchestrator in package regen re-runs the deterministic layers on every
candidate.

  - CritiqueRevise asks for a corrected full output.
  - PartialRegeneration asks for the smallest subtree enclosing every
    violation and splices it back into the document.
  - ModelEscalation re-issues the original prompt to a stronger model.

A strategy that cannot apply to a request reports so through Prompt
before any call is made, which lets the caller check its cost ceiling
against an estimate of the exact prompt that would be sent.
*/
package recovery
