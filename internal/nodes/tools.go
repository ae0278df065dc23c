package nodes

import (
	"context"
	"errors"
	"fmt"

	"rent360_assistant/internal/knowledge"
	"rent360_assistant/internal/nlu"
	"rent360_assistant/internal/security"
	"rent360_assistant/pkg"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

// LookupRequest is the argument of the lookup tools
type LookupRequest struct {
	Question string `json:"question" jsonschema:"description=pregunta del usuario"`
	Role     string `json:"role,omitempty" jsonschema:"description=rol del usuario en Rent360 (tenant, owner, broker, provider, runner, admin, guest)"`
}

// LookupResult is the reply of the lookup tools
type LookupResult struct {
	Found      bool     `json:"found"`
	Answer     string   `json:"answer,omitempty"`
	Intent     string   `json:"intent,omitempty"`
	Confidence float64  `json:"confidence"`
	Links      []string `json:"links,omitempty"`
	// Withheld is set when the validator replaced the answer
	Withheld bool `json:"withheld,omitempty"`
}

// ToolSet exposes the local answer sources as eino tools bound to the
// provider tier. Every answer passes the validator under the caller's role.
type ToolSet struct {
	Dataset    *knowledge.Dataset
	Responder  *knowledge.Responder
	Classifier *nlu.Classifier
	Security   *security.Builder
	Validator  *security.Validator
}

var errIncompleteToolSet = errors.New("tool set requires dataset, responder, classifier, security and validator")

func (s ToolSet) complete() bool {
	return s.Dataset != nil && s.Responder != nil && s.Classifier != nil && s.Security != nil && s.Validator != nil
}

// validate runs answer through the validator for role
func (s ToolSet) validate(result LookupResult, role pkg.Role) LookupResult {
	verdict := s.Validator.Validate(result.Answer, s.Security.Build(role))
	if verdict.Replaced {
		return LookupResult{Answer: verdict.Text, Intent: result.Intent, Withheld: true}
	}
	return result
}

// DatasetTool looks a question up in the training dataset
func (s ToolSet) DatasetTool() (tool.InvokableTool, error) {
	if !s.complete() {
		return nil, errIncompleteToolSet
	}
	return utils.InferTool("rent360_dataset_lookup", "Busca una respuesta verificada en el dataset de entrenamiento de Rent360",
		func(ctx context.Context, req LookupRequest) (LookupResult, error) {
			role := pkg.NormalizeRole(req.Role)
			match, ok := s.Dataset.FindBestMatch(req.Question, role)
			if !ok {
				return LookupResult{}, nil
			}
			return s.validate(LookupResult{
				Found:      true,
				Answer:     match.Text,
				Intent:     match.Intent,
				Confidence: match.Confidence,
			}, role), nil
		})
}

// KnowledgeTool classifies a question and answers from the knowledge base
// under the role's security policy
func (s ToolSet) KnowledgeTool() (tool.InvokableTool, error) {
	if !s.complete() {
		return nil, errIncompleteToolSet
	}
	return utils.InferTool("rent360_knowledge_lookup", "Responde una pregunta con la base de conocimiento de Rent360 respetando los permisos del rol",
		func(ctx context.Context, req LookupRequest) (LookupResult, error) {
			role := pkg.NormalizeRole(req.Role)
			result := s.Classifier.Classify(req.Question, role, nil)
			env := s.Responder.Respond(result, role, s.Security.Build(role))

			links := make([]string, 0, len(env.Links))
			for _, link := range env.Links {
				links = append(links, link.URL)
			}
			return s.validate(LookupResult{
				Found:      env.SecurityNote == "",
				Answer:     env.Text,
				Intent:     env.Intent,
				Confidence: env.Confidence,
				Links:      links,
			}, role), nil
		})
}

// Tools returns every lookup tool
func (s ToolSet) Tools() ([]tool.BaseTool, error) {
	datasetTool, err := s.DatasetTool()
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset tool: %w", err)
	}
	knowledgeTool, err := s.KnowledgeTool()
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge tool: %w", err)
	}
	return []tool.BaseTool{datasetTool, knowledgeTool}, nil
}
