// Package docs holds the OpenAPI document served by Swagger UI. Regenerate
// it from the handler annotations after changing routes.
package docs

//go:generate swag init -g cmd/traderobots/main.go -d ../ -o . --parseInternal

import "github.com/swaggo/swag"

const docTemplate = `
{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/tokens/balance": {
            "get": {
                "summary": "My token balance",
                "tags": [
                    "Tokens"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/admin/tokens": {
            "post": {
                "summary": "Credit tokens (admin)",
                "tags": [
                    "Admin"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/admin/users/{id}": {
            "delete": {
                "summary": "Delete a user (admin)",
                "tags": [
                    "Admin"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/analyses/backtest": {
            "post": {
                "summary": "Analyse a backtest report",
                "tags": [
                    "Analyses"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/analyses/strategy": {
            "post": {
                "summary": "Analyse a strategy description",
                "tags": [
                    "Analyses"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/analyses": {
            "get": {
                "summary": "List my analyses",
                "tags": [
                    "Analyses"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/analyses/{id}": {
            "get": {
                "summary": "Get one of my analyses",
                "tags": [
                    "Analyses"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/analyses/{id}/metrics": {
            "patch": {
                "summary": "Merge metrics into a backtest analysis",
                "tags": [
                    "Analyses"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/robots/{name}/share-link": {
            "post": {
                "summary": "Create a public share link",
                "tags": [
                    "Sharing"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/robots/{name}/grants": {
            "get": {
                "summary": "Who a robot is shared with",
                "tags": [
                    "Sharing"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/robots/{name}/grants/{userID}": {
            "delete": {
                "summary": "Withdraw a user's access to a robot",
                "tags": [
                    "Sharing"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/shared-robots": {
            "get": {
                "summary": "Robots shared with me",
                "tags": [
                    "Sharing"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/robots/{name}/invites": {
            "post": {
                "summary": "Invite an email to a robot",
                "tags": [
                    "Invites"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "get": {
                "summary": "List active invites of a robot",
                "tags": [
                    "Invites"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/robots/{name}/invites/check": {
            "get": {
                "summary": "Check for an active invite",
                "tags": [
                    "Invites"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invites/pending": {
            "get": {
                "summary": "Invites addressed to me",
                "tags": [
                    "Invites"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invites/{id}/accept": {
            "post": {
                "summary": "Accept an invite",
                "tags": [
                    "Invites"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invites/{id}/decline": {
            "post": {
                "summary": "Decline an invite",
                "tags": [
                    "Invites"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invites/{id}": {
            "delete": {
                "summary": "Revoke an invite",
                "tags": [
                    "Invites"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/robots": {
            "post": {
                "summary": "Register a robot",
                "tags": [
                    "Robots"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "get": {
                "summary": "List own robots",
                "tags": [
                    "Robots"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "TradeRobots API",
	Description:      "Robot sharing, invitations and AI-assisted strategy analyses.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
