package tmsl

// ModelType classifies a model by its partition modes.
type ModelType string

const (
	ModelImport     ModelType = "import"
	ModelDirectLake ModelType = "directLake"
	ModelMixed      ModelType = "mixed"
	ModelUnknown    ModelType = "unknown"
)

const (
	partitionModeImport     = "import"
	partitionModeDirectLake = "directLake"
)

// DetectModelType inspects every partition mode in the model.
func DetectModelType(model map[string]any) ModelType {
	modes := map[string]struct{}{}
	for _, table := range objects(model, "tables") {
		for _, partition := range objects(table, "partitions") {
			mode := stringField(partition, "mode")
			if mode == "" {
				mode = "unknown"
			}
			modes[mode] = struct{}{}
		}
	}
	if len(modes) == 0 {
		return ModelUnknown
	}

	_, hasDirectLake := modes[partitionModeDirectLake]
	_, hasImport := modes[partitionModeImport]
	switch {
	case hasDirectLake && hasImport:
		return ModelMixed
	case hasDirectLake:
		return ModelDirectLake
	case hasImport:
		return ModelImport
	default:
		return ModelUnknown
	}
}
