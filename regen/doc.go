// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package regen turns raw model output into data that conforms to a schema
contract, escalating through progressively more expensive repair layers.

# Overview

[Regenerator.Regenerate] walks the layers in a fixed order and stops at the
first candidate that validates:

 1. PreprocessNormalize applies enum synonyms and type coercions.
 2. SyntaxRepair fixes malformed JSON without any LLM call.
 3. SemanticMatch maps invalid enum values by embedding similarity.
 4. CritiqueRevise, PartialRegeneration and ModelEscalation call the LLM.
 5. WarningFallback returns the best unvalidated candidate when allowed.

Every LLM candidate is fed back through the deterministic layers before it
is validated. Model escalation happens at most once per run and is followed
by one more critique round against the stronger model.

# Cost

Each run carries a token ceiling ([Config.MaxTotalTokenCost]). Before a call
the estimated prompt size is checked against the remaining budget and the
output cap is clamped to what is left. A ceiling of zero disables every LLM
layer. Reported usage that pushes the total over the ceiling ends the run
with [ErrBudgetExceeded].

# Configuration

[StrictConfig] never returns unvalidated data. [AdvisoryConfig] spends less
and permits the warning fallback. Both are plain values and can be loaded
from YAML.

# Batches

[RunUnits] regenerates independent units concurrently on a worker pool. One
unit's failure never affects another, and a unit may be retried as a whole
under a [retry.RetryPolicy]. [Build] wires a complete [Runtime] from the
process configuration.
*/
package regen
