package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description string, required bool, typ string) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      map[string]string{"type": typ},
	}
}

func jsonResponse(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func listSchema(key string, items map[string]string) object {
	return object{
		"type": "object",
		"properties": object{
			key:     object{"type": "array", "items": items},
			"count": map[string]string{"type": "integer"},
		},
	}
}

var errorSchema = object{"$ref": "#/components/schemas/Error"}

var (
	patternParam  = queryParam("pattern", "File glob or configured pattern name", false, "string")
	variableParam = queryParam("variable", "Restrict to one variable name", false, "string")
	timeItems     = map[string]string{"type": "string", "example": "2019-01-01 12:00:00"}
)

func listOperation(summary, key string, items map[string]string, params ...object) object {
	get := object{
		"summary": summary,
		"responses": object{
			"200": jsonResponse("Listing", listSchema(key, items)),
			"400": jsonResponse("Invalid pattern", errorSchema),
		},
	}
	if len(params) > 0 {
		get["parameters"] = params
	}
	return object{"get": get}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the forecast index API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Forest Forecast Index API",
			"description": "Lookup of NetCDF forecast files by variable, initial time, valid time and pressure",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/variables": listOperation("List variable names", "variables",
				map[string]string{"type": "string"}),
			"/api/files": listOperation("List indexed files", "files",
				map[string]string{"type": "string"}, patternParam),
			"/api/initial_times": listOperation("List forecast reference times", "initial_times",
				timeItems, patternParam, variableParam),
			"/api/valid_times": listOperation("List forecast valid times", "valid_times",
				timeItems, patternParam, variableParam),
			"/api/pressures": listOperation("List pressure levels", "pressures",
				map[string]string{"type": "number"}, patternParam, variableParam),
			"/api/patterns": object{
				"get": object{
					"summary": "List configured file patterns",
					"responses": object{
						"200": jsonResponse("Named patterns", object{
							"type": "object",
							"properties": object{
								"patterns": object{
									"type": "array",
									"items": object{
										"type": "object",
										"properties": object{
											"name":    map[string]string{"type": "string"},
											"pattern": map[string]string{"type": "string"},
										},
									},
								},
								"count": map[string]string{"type": "integer"},
							},
						}),
					},
				},
			},
			"/api/locate": object{
				"get": object{
					"summary":     "Locate a field",
					"description": "Find the file and array index holding a variable at an initial time, valid time and nearest pressure level",
					"parameters": []object{
						queryParam("variable", "Variable name", true, "string"),
						queryParam("initial_time", "Forecast reference time, YYYY-MM-DD HH:MM:SS or RFC 3339", true, "string"),
						queryParam("valid_time", "Forecast valid time, YYYY-MM-DD HH:MM:SS or RFC 3339", true, "string"),
						queryParam("pressure", "Target pressure; the nearest stored level is used", false, "number"),
						patternParam,
					},
					"responses": object{
						"200": jsonResponse("Location of the field", object{
							"type": "object",
							"properties": object{
								"path":  map[string]string{"type": "string"},
								"index": object{"type": "array", "items": map[string]string{"type": "integer"}},
							},
						}),
						"400": jsonResponse("Invalid parameters", errorSchema),
						"404": jsonResponse("No matching record", errorSchema),
					},
				},
			},
			"/api/stats": object{
				"get": object{
					"summary":     "Index statistics",
					"description": "Table counts and per-variable coordinate coverage",
					"responses": object{
						"200": jsonResponse("Index report", object{"type": "object"}),
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": jsonResponse("Index store reachable", object{"type": "object"}),
						"503": jsonResponse("Index store unreachable", object{"type": "object"}),
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content": object{
								"text/plain": object{"schema": map[string]string{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"Error": object{
					"type": "object",
					"properties": object{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
