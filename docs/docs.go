// Package docs holds the OpenAPI document served by the swagger build.
// Regenerate with: swag init -g cmd/nanochatd/docs.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "nanochatd maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        },
        "/info": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Info",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InfoResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/v1/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List models",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}
                }
            }
        },
        "/v1/chat/completions": {
            "post": {
                "description": "Streams chat.completion.chunk events as text/event-stream unless stream is false.",
                "consumes": ["application/json"],
                "produces": ["text/event-stream", "application/json"],
                "tags": ["chat"],
                "summary": "Create a chat completion",
                "parameters": [
                    {
                        "description": "Chat request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.ChatCompletionRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ChatCompletionChunk"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ChatMessage": {
            "type": "object",
            "properties": {
                "role": {"type": "string", "example": "user"},
                "content": {"type": "string", "example": "Why is the sky blue?"}
            }
        },
        "types.ChatCompletionRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/types.ChatMessage"}},
                "temperature": {"type": "number", "example": 0.7},
                "max_tokens": {"type": "integer", "example": 512},
                "max_completion_tokens": {"type": "integer"},
                "top_k": {"type": "integer", "example": 50},
                "top_p": {"type": "number"},
                "frequency_penalty": {"type": "number"},
                "presence_penalty": {"type": "number"},
                "repeat_penalty": {"type": "number"},
                "stop": {"type": "array", "items": {"type": "string"}},
                "seed": {"type": "integer"},
                "stream": {"type": "boolean", "example": true},
                "stream_options": {"type": "object", "properties": {"include_usage": {"type": "boolean"}}}
            }
        },
        "types.ChatCompletionChunk": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "chatcmpl-3f1c"},
                "object": {"type": "string", "example": "chat.completion.chunk"},
                "created": {"type": "integer"},
                "model": {"type": "string"},
                "choices": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "index": {"type": "integer"},
                            "delta": {"type": "object", "properties": {"role": {"type": "string"}, "content": {"type": "string"}}},
                            "finish_reason": {"type": "string"}
                        }
                    }
                },
                "usage": {"$ref": "#/definitions/types.Usage"}
            }
        },
        "types.Usage": {
            "type": "object",
            "properties": {
                "prompt_tokens": {"type": "integer"},
                "completion_tokens": {"type": "integer"},
                "total_tokens": {"type": "integer"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "message": {"type": "string", "example": "Too many messages (max 500)"},
                        "type": {"type": "string", "example": "invalid_request_error"},
                        "code": {"type": "integer", "example": 400}
                    }
                }
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ready"},
                "ready": {"type": "boolean"},
                "backend": {"type": "string", "example": "quantized"},
                "device": {"type": "string", "example": "cpu"},
                "detail": {"type": "string"}
            }
        },
        "types.InfoResponse": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "nanochatd"},
                "version": {"type": "string", "example": "0.1.0"},
                "model": {"type": "string", "example": "sdobson/nanochat"},
                "backend": {"type": "string", "example": "quantized"},
                "device": {"type": "string", "example": "cpu"},
                "path": {"type": "string"},
                "vocab_size": {"type": "integer", "example": 65536}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "nanochat-d32"},
                "object": {"type": "string", "example": "model"},
                "created": {"type": "integer"},
                "owned_by": {"type": "string", "example": "nanochatd"},
                "backend": {"type": "string", "example": "quantized"},
                "path": {"type": "string"},
                "quant": {"type": "string", "example": "Q4_K_M"},
                "family": {"type": "string", "example": "llama"},
                "active": {"type": "boolean"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "object": {"type": "string", "example": "list"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "model": {"type": "string"},
                "backend": {"type": "string"},
                "device": {"type": "string"},
                "vocab_size": {"type": "integer"},
                "queue_len": {"type": "integer"},
                "inflight": {"type": "integer"},
                "max_queue_depth": {"type": "integer", "example": 32},
                "workers": {"type": "integer", "example": 4},
                "tokens_total": {"type": "integer"},
                "generations_total": {"type": "integer"},
                "last_error": {"type": "string"},
                "load_ms": {"type": "integer"},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "nanochatd API",
	Description:      "OpenAI-compatible chat completions served from a local nanochat model.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
