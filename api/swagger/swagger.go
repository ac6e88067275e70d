package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "AcadPlan Timetable API",
        "description": "University timetable generation, validation and room reservation engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Timetables", "description": "Timetable building, optimization, validation and approval"},
        {"name": "Reservations", "description": "Dated infrastructure booking batches"},
        {"name": "Formations", "description": "Formation offers, sections, groups and subjects"},
        {"name": "Infrastructure", "description": "Rooms, labs, amphitheaters and maintenance windows"},
        {"name": "Teachers", "description": "Teacher profiles and availability"},
        {"name": "Semesters", "description": "Semester calendars, holidays and exam periods"},
        {"name": "Exports", "description": "CSV and PDF timetable exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a user",
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "Tokens rotated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Profile", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/build": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Build an initial timetable for a formation and semester",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Timetable built, possibly with placement issues"}
                }
            }
        },
        "/timetables/{id}/optimize": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Refine a timetable with simulated annealing",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Optimization result"},
                    "409": {"description": "Run already in progress or timetable finalized"}
                }
            }
        },
        "/timetables/{id}/validate": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Run the conflict validation suite",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Validation status with issues"}
                }
            }
        },
        "/timetables/{id}/approve": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Advance the approval ladder by one level",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "New approval state"},
                    "409": {"description": "Level skip or unvalidated timetable"}
                }
            }
        },
        "/timetables/{id}/reservations": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Expand a validated timetable into a reservation batch",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "201": {"description": "Batch created or existing live batch returned"}
                }
            }
        },
        "/reservation-batches/{id}/process": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Start asynchronous batch processing",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "202": {"description": "Processing accepted"}
                }
            }
        },
        "/timetables/{id}/export/csv": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export a timetable as CSV",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV attachment"}
                }
            }
        },
        "/timetables/{id}/export/pdf": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export a timetable as PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "produces": ["application/pdf"],
                "responses": {
                    "200": {"description": "PDF attachment"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "totalItems": {"type": "integer"},
                "totalPages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
