package gemini

import (
	"google.golang.org/genai"

	"nora/internal/domain"
)

// FunctionDeclarations describes the tools both channels expose to the model.
// photoCategories becomes the enum of show_company_photo.
func FunctionDeclarations(photoCategories []string) []*genai.FunctionDeclaration {
	str := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: description}
	}

	return []*genai.FunctionDeclaration{
		{
			Name:        string(domain.ToolUpdateRecord),
			Description: "Update customer details on the card instantly.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					string(domain.FieldName):    str(""),
					string(domain.FieldPhone):   str(""),
					string(domain.FieldEmail):   str(""),
					string(domain.FieldArea):    str(""),
					string(domain.FieldService): str(""),
				},
			},
		},
		{
			Name:        string(domain.ToolPostChatMessage),
			Description: "Send a text message to the chat window for the user to read.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"message": str("The text message to display in chat"),
				},
				Required: []string{"message"},
			},
		},
		{
			Name:        string(domain.ToolShowPhoto),
			Description: "Show a specific service or company photo to the customer.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"photoType": {
						Type:        genai.TypeString,
						Enum:        append([]string(nil), photoCategories...),
						Description: "The category of the photo to show",
					},
					"message": str("Optional message about the photo"),
				},
				Required: []string{"photoType"},
			},
		},
		{
			Name:        string(domain.ToolSendConfirmation),
			Description: "Send a confirmation email to the customer.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"email":   str(""),
					"details": str(""),
				},
				Required: []string{"email"},
			},
		},
		{
			Name:        string(domain.ToolEndCall),
			Description: "End the current session.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{},
			},
		},
	}
}

// Tools wraps the declarations in a single tool.
func Tools(photoCategories []string) []*genai.Tool {
	return []*genai.Tool{{FunctionDeclarations: FunctionDeclarations(photoCategories)}}
}
