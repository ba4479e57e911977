// Package docs holds the OpenAPI document served by the Swagger UI.
// Regenerate with: swag init --v3.1 -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "openapi": "3.1.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "servers": [{"url": "{{.Host}}{{.BasePath}}"}],
    "tags": [
        {"name": "ingest", "description": "Raw source uploads"},
        {"name": "ledger", "description": "Published ledger snapshots"},
        {"name": "runs", "description": "Reconciliation runs"},
        {"name": "payments", "description": "Payment registration"},
        {"name": "system", "description": "Health and service information"}
    ],
    "paths": {
        "/ingest/{kind}": {
            "post": {
                "operationId": "ingestSource",
                "tags": ["ingest"],
                "summary": "Upload a source file",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "schema": {"type": "string", "enum": ["order", "invoice", "payment", "corporate"]}}
                ],
                "requestBody": {
                    "content": {
                        "multipart/form-data": {
                            "schema": {
                                "type": "object",
                                "required": ["file"],
                                "properties": {
                                    "file": {"type": "string", "format": "binary"},
                                    "format": {"type": "string", "enum": ["csv", "tsv", "xlsx"]},
                                    "encoding": {"type": "string", "enum": ["utf-8", "shift_jis"]},
                                    "snapshot_at": {"type": "string"},
                                    "sheet": {"type": "string"}
                                }
                            }
                        }
                    }
                },
                "responses": {
                    "200": {"$ref": "#/components/responses/Envelope"},
                    "201": {"$ref": "#/components/responses/Envelope"},
                    "400": {"$ref": "#/components/responses/Error"},
                    "413": {"$ref": "#/components/responses/Error"},
                    "422": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/ledger/rows": {
            "get": {
                "operationId": "listLedgerRows",
                "tags": ["ledger"],
                "summary": "List ledger rows",
                "parameters": [
                    {"$ref": "#/components/parameters/Version"},
                    {"name": "status", "in": "query", "schema": {"type": "array", "items": {"type": "string", "enum": ["INVALID", "PAID", "OVERDUE", "BILLED", "UNBILLED"]}}},
                    {"$ref": "#/components/parameters/Limit"},
                    {"$ref": "#/components/parameters/Offset"}
                ],
                "responses": {
                    "200": {"$ref": "#/components/responses/Envelope"},
                    "404": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/ledger/rows/recent": {
            "get": {
                "operationId": "listRecentLedgerRows",
                "tags": ["ledger"],
                "summary": "Most recent orders of the current snapshot",
                "parameters": [{"$ref": "#/components/parameters/Limit"}],
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}}
            }
        },
        "/ledger/rows/{sequence_no}": {
            "get": {
                "operationId": "getLedgerRow",
                "tags": ["ledger"],
                "summary": "Get one row of the current snapshot",
                "parameters": [{"name": "sequence_no", "in": "path", "required": true, "schema": {"type": "string"}}],
                "responses": {
                    "200": {"$ref": "#/components/responses/Envelope"},
                    "404": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/ledger/exceptions": {
            "get": {
                "operationId": "listLedgerExceptions",
                "tags": ["ledger"],
                "summary": "List exceptions",
                "parameters": [
                    {"$ref": "#/components/parameters/Version"},
                    {"name": "kind", "in": "query", "schema": {"type": "array", "items": {"type": "string", "enum": ["AMOUNT_MISMATCH", "OVERDUE", "MISSING_INVOICE", "ORPHAN_DOCUMENT"]}}},
                    {"name": "severity", "in": "query", "schema": {"type": "array", "items": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL"]}}},
                    {"$ref": "#/components/parameters/Limit"},
                    {"$ref": "#/components/parameters/Offset"}
                ],
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}}
            }
        },
        "/ledger/summary": {
            "get": {
                "operationId": "getLedgerSummary",
                "tags": ["ledger"],
                "summary": "KPI summary of a snapshot",
                "parameters": [{"$ref": "#/components/parameters/Version"}],
                "responses": {
                    "200": {"$ref": "#/components/responses/Envelope"},
                    "404": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/ledger/status": {
            "get": {
                "operationId": "getLedgerStatus",
                "tags": ["ledger"],
                "summary": "Current snapshot, last runs and next scheduled run",
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}}
            }
        },
        "/ledger/snapshots": {
            "get": {
                "operationId": "listLedgerSnapshots",
                "tags": ["ledger"],
                "summary": "Published snapshot versions, newest first",
                "parameters": [{"$ref": "#/components/parameters/Limit"}],
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}}
            }
        },
        "/runs": {
            "get": {
                "operationId": "listRuns",
                "tags": ["runs"],
                "summary": "Run history, newest first",
                "parameters": [{"$ref": "#/components/parameters/Limit"}],
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}}
            },
            "post": {
                "operationId": "triggerRun",
                "tags": ["runs"],
                "summary": "Trigger a reconciliation run",
                "requestBody": {
                    "content": {
                        "application/json": {
                            "schema": {
                                "type": "object",
                                "properties": {
                                    "as_of": {"type": "string", "format": "date"},
                                    "tolerance": {"type": "string"},
                                    "grace_period_days": {"type": "integer", "minimum": 0}
                                }
                            }
                        }
                    }
                },
                "responses": {
                    "201": {"$ref": "#/components/responses/Envelope"},
                    "409": {"$ref": "#/components/responses/Error"},
                    "500": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/payments": {
            "post": {
                "operationId": "registerPayment",
                "tags": ["payments"],
                "summary": "Register a payment",
                "parameters": [{"name": "Idempotency-Key", "in": "header", "schema": {"type": "string"}}],
                "requestBody": {
                    "content": {
                        "application/json": {
                            "schema": {
                                "type": "object",
                                "required": ["order_id", "amount", "payment_date"],
                                "properties": {
                                    "order_id": {"type": "string"},
                                    "invoice_number": {"type": "string"},
                                    "amount": {"type": "string"},
                                    "payment_date": {"type": "string", "format": "date"},
                                    "note": {"type": "string"},
                                    "idempotency_key": {"type": "string"}
                                }
                            }
                        }
                    }
                },
                "responses": {
                    "200": {"$ref": "#/components/responses/Envelope"},
                    "201": {"$ref": "#/components/responses/Envelope"},
                    "400": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/batches": {
            "get": {
                "operationId": "listBatches",
                "tags": ["ingest"],
                "summary": "Ingested raw batches",
                "parameters": [
                    {"name": "kind", "in": "query", "schema": {"type": "string", "enum": ["order", "invoice", "payment", "corporate"]}},
                    {"$ref": "#/components/parameters/Limit"},
                    {"$ref": "#/components/parameters/Offset"},
                    {"name": "sort_by", "in": "query", "schema": {"type": "string", "enum": ["seq", "ingested_at", "row_count", "valid_rows", "kind"], "default": "seq"}},
                    {"name": "sort_order", "in": "query", "schema": {"type": "string", "enum": ["asc", "desc"], "default": "desc"}}
                ],
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}, "400": {"$ref": "#/components/responses/Error"}}
            }
        },
        "/system/info": {
            "get": {
                "operationId": "getSystemSystemInfo",
                "tags": ["system"],
                "summary": "Get system information",
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}}
            }
        },
        "/system/ping": {
            "get": {
                "operationId": "pingSystem",
                "tags": ["system"],
                "summary": "Ping the API",
                "responses": {"200": {"$ref": "#/components/responses/Envelope"}}
            }
        }
    },
    "components": {
        "parameters": {
            "Version": {"name": "version", "in": "query", "description": "Snapshot version, 0 for current", "schema": {"type": "integer", "minimum": 0}},
            "Limit": {"name": "limit", "in": "query", "schema": {"type": "integer", "minimum": 0, "maximum": 1000}},
            "Offset": {"name": "offset", "in": "query", "schema": {"type": "integer", "minimum": 0}}
        },
        "schemas": {
            "ErrorInfo": {
                "type": "object",
                "properties": {
                    "code": {"type": "string", "example": "ERR_NO_SNAPSHOT"},
                    "message": {"type": "string"},
                    "request_id": {"type": "string"},
                    "timestamp": {"type": "string", "format": "date-time"},
                    "details": {"type": "array", "items": {"type": "object", "properties": {"field": {"type": "string"}, "message": {"type": "string"}}}}
                }
            },
            "Response": {
                "type": "object",
                "properties": {
                    "success": {"type": "boolean"},
                    "data": {},
                    "meta": {"type": "object", "properties": {"total": {"type": "integer"}, "page": {"type": "integer"}, "page_size": {"type": "integer"}, "total_pages": {"type": "integer"}}},
                    "error": {"$ref": "#/components/schemas/ErrorInfo"}
                }
            }
        },
        "responses": {
            "Envelope": {"description": "Success", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Response"}}}},
            "Error": {"description": "Error", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Response"}}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Procurement Ledger API",
	Description:      "Reconciles purchase orders, invoices and payments into a published ledger",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
