// Package docs holds the OpenAPI description of the forecasting API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.RunRecord"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "description": "Start a forecasting run. Fields left out of the body take the configured defaults.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Create a run",
                "parameters": [
                    {"description": "Run settings", "name": "run", "in": "body", "schema": {"$ref": "#/definitions/model.RunSpec"}}
                ],
                "responses": {
                    "202": {"description": "Run accepted", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid run", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.RunRecord"}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/errors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run errors",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Run errors", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/evaluations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run evaluations",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Evaluations", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/predictions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run predictions",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Predictions", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/logs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run logs",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Logs", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/progress": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run progress",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Stage progress", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/files": {
            "get": {
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "List run files",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Files", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/files/{name}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["files"],
                "summary": "Download file",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "File name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "File download", "schema": {"type": "file"}},
                    "404": {"description": "File not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Healthy", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Registry unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "model.RunRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "spec": {"$ref": "#/definitions/model.RunSpec"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "model.RunSpec": {
            "type": "object",
            "properties": {
                "sources": {"type": "object", "additionalProperties": {"type": "string"}},
                "features": {"type": "object", "additionalProperties": true},
                "framer": {"type": "object", "additionalProperties": true},
                "model": {"type": "object", "additionalProperties": true},
                "evaluate": {"type": "object", "additionalProperties": true},
                "forecast": {"type": "object", "additionalProperties": true},
                "export": {"type": "object", "additionalProperties": true}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Visitor Forecast API",
	Description:      "Runs the restaurant visitor forecasting pipeline and serves its results.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
