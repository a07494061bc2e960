// Package tmsl inspects, validates, and edits Tabular Model Scripting
// Language documents. TMSL is open-ended JSON, so the document model is
// map[string]any; the helpers in this package know where models, tables,
// and partitions live inside the common envelope shapes
// (bare model, createOrReplace.database, createOrReplace.table).
package tmsl
