// Package docs registers the OpenAPI description of the flickd HTTP API with
// swag. It is imported by the swagger build of the httpapi package.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Session status snapshot",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/training/start": {
            "post": {
                "produces": ["application/json"],
                "summary": "Start a calibration run",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OKResponse"}},
                    "409": {"description": "prediction is active", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "signal source unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/training/stop": {
            "post": {
                "produces": ["application/json"],
                "summary": "Stop the calibration run",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OKResponse"}}}
            }
        },
        "/prediction/start": {
            "post": {
                "produces": ["application/json"],
                "summary": "Start the monitoring loop",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OKResponse"}},
                    "409": {"description": "training is active", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/prediction/stop": {
            "post": {
                "produces": ["application/json"],
                "summary": "Stop the monitoring loop",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OKResponse"}}}
            }
        },
        "/prediction/restart": {
            "post": {
                "produces": ["application/json"],
                "summary": "Re-arm the monitoring loop from Acting to Resting",
                "responses": {"200": {"description": "ok is false unless the loop was Acting", "schema": {"$ref": "#/definitions/types.OKResponse"}}}
            }
        },
        "/actuator/test": {
            "post": {
                "produces": ["application/json"],
                "summary": "Trigger the actuator once",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OKResponse"}},
                    "504": {"description": "actuator timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/events": {
            "get": {
                "summary": "WebSocket stream of {id, data} events",
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "training session is active"},
                "code": {"type": "integer", "example": 409},
                "reason": {"type": "string", "example": "session_conflict"}
            }
        },
        "types.TrainingStatus": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "Resting"},
                "trials": {"type": "integer", "example": 2},
                "target": {"type": "integer", "example": 10},
                "error": {"type": "string", "example": "trial_ack_timeout"},
                "run_id": {"type": "string"}
            }
        },
        "types.PredictionStatus": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "Acting"},
                "error": {"type": "string"},
                "detections": {"type": "integer", "example": 3},
                "run_id": {"type": "string"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "training": {"$ref": "#/definitions/types.TrainingStatus"},
                "prediction": {"$ref": "#/definitions/types.PredictionStatus"},
                "eeg_stream_is_available": {"type": "boolean", "example": true},
                "source_name": {"type": "string", "example": "headset-sim"},
                "stale_callbacks": {"type": "integer", "example": 0},
                "listener_failures": {"type": "integer", "example": 0},
                "uptime_seconds": {"type": "integer", "example": 3600},
                "server_time_unix": {"type": "integer", "example": 1700000000}
            }
        },
        "types.OKResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean", "example": true},
                "status": {"$ref": "#/definitions/types.StatusResponse"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "flickd API",
	Description:      "Control surface for biosignal calibration and monitoring sessions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
