package tmsl

import (
	"fmt"
	"strings"
)

const (
	templateCompatibilityLevel = 1604
	templateCollation          = "Latin1_General_100_BIN2_UTF8"
	templateCulture            = "en-US"
	directLakeDataSourceName   = "DatabaseQuery"
)

// TableSchema describes one lakehouse table to include in a generated
// DirectLake model.
type TableSchema struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
}

// ColumnSchema pairs a column with its SQL endpoint type.
type ColumnSchema struct {
	Name    string `json:"name"`
	SQLType string `json:"sqlType"`
}

// TemplateOptions configure DirectLake template generation. Server and
// EndpointID come from the lakehouse SQL analytics endpoint.
type TemplateOptions struct {
	ModelName  string        `json:"modelName"`
	Server     string        `json:"server"`
	EndpointID string        `json:"endpointId"`
	SchemaName string        `json:"schemaName,omitempty"`
	Tables     []TableSchema `json:"tables"`
}

// Template generates a complete DirectLake TMSL createOrReplace document
// for the given lakehouse tables: compatibility level 1604, the
// DatabaseQuery M expression, the Power BI model annotations, and one
// directLake entity partition per table.
func Template(opts TemplateOptions) (map[string]any, error) {
	if strings.TrimSpace(opts.ModelName) == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if strings.TrimSpace(opts.Server) == "" || strings.TrimSpace(opts.EndpointID) == "" {
		return nil, fmt.Errorf("SQL analytics endpoint server and endpoint id are required")
	}
	if len(opts.Tables) == 0 {
		return nil, fmt.Errorf("at least one table is required")
	}
	schemaName := opts.SchemaName
	if schemaName == "" {
		schemaName = "dbo"
	}

	tables := make([]any, 0, len(opts.Tables))
	for _, table := range opts.Tables {
		if strings.TrimSpace(table.Name) == "" {
			return nil, fmt.Errorf("table without a name")
		}
		if len(table.Columns) == 0 {
			return nil, fmt.Errorf("table %q has no columns", table.Name)
		}
		tables = append(tables, templateTable(table, schemaName))
	}

	return map[string]any{
		"createOrReplace": map[string]any{
			"object": map[string]any{
				"database": opts.ModelName,
			},
			"database": map[string]any{
				"name":               opts.ModelName,
				"compatibilityLevel": templateCompatibilityLevel,
				"model": map[string]any{
					"culture":   templateCulture,
					"collation": templateCollation,
					"dataAccessOptions": map[string]any{
						"legacyRedirects":         true,
						"returnErrorValuesAsNull": true,
					},
					"defaultPowerBIDataSourceVersion": "powerBI_V3",
					"sourceQueryCulture":              templateCulture,
					"tables":                          tables,
					"expressions": []any{
						map[string]any{
							"name": directLakeDataSourceName,
							"kind": "m",
							"expression": []any{
								"let",
								fmt.Sprintf("    database = Sql.Database(%q, %q)", opts.Server, opts.EndpointID),
								"in",
								"    database",
							},
							"lineageTag": "DatabaseQuery_expression",
							"annotations": []any{
								map[string]any{"name": "PBI_IncludeFutureArtifacts", "value": "False"},
							},
						},
					},
					"annotations": []any{
						map[string]any{"name": "__PBI_TimeIntelligenceEnabled", "value": "0"},
						map[string]any{"name": "PBI_QueryOrder", "value": `["DatabaseQuery"]`},
						map[string]any{"name": "PBI_ProTooling", "value": `["WebModelingEdit"]`},
					},
				},
			},
		},
	}, nil
}

func templateTable(table TableSchema, schemaName string) map[string]any {
	columns := make([]any, 0, len(table.Columns))
	for _, column := range table.Columns {
		dataType := TabularType(column.SQLType)
		columns = append(columns, map[string]any{
			"name":             column.Name,
			"dataType":         dataType,
			"sourceColumn":     column.Name,
			"lineageTag":       fmt.Sprintf("%s_%s", table.Name, column.Name),
			"sourceLineageTag": column.Name,
			"summarizeBy":      summarizeBy(dataType, column.Name),
		})
	}
	return map[string]any{
		"name":             table.Name,
		"lineageTag":       table.Name + "_table",
		"sourceLineageTag": fmt.Sprintf("[%s].[%s]", schemaName, table.Name),
		"columns":          columns,
		"partitions": []any{
			map[string]any{
				"name": table.Name + "_partition",
				"mode": partitionModeDirectLake,
				"source": map[string]any{
					"type":             "entity",
					"schemaName":       schemaName,
					"entityName":       table.Name,
					"expressionSource": directLakeDataSourceName,
				},
			},
		},
	}
}

// TabularType maps a SQL endpoint type to the tabular dataType DirectLake
// partitions expect. Unknown types fall back to string.
func TabularType(sqlType string) string {
	switch strings.ToLower(strings.TrimSpace(sqlType)) {
	case "varchar", "nvarchar", "char", "nchar", "text", "ntext", "uniqueidentifier":
		return "string"
	case "int", "bigint", "smallint", "tinyint":
		return "int64"
	case "decimal", "numeric", "money", "smallmoney":
		return "decimal"
	case "float", "real":
		return "double"
	case "datetime", "datetime2", "date", "time", "smalldatetime":
		return "dateTime"
	case "bit":
		return "boolean"
	default:
		return "string"
	}
}

// summarizeBy defaults to none; quantity-like numeric columns sum.
func summarizeBy(dataType, columnName string) string {
	if dataType != "int64" && dataType != "decimal" && dataType != "double" {
		return "none"
	}
	lower := strings.ToLower(columnName)
	if strings.Contains(lower, "quantity") || strings.Contains(lower, "amount") {
		return "sum"
	}
	return "none"
}
