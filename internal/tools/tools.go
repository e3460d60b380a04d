// Package tools implements the callable tool catalog offered to the
// completion service, with typed argument schemas and persisted side
// effects.
package tools

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/atendai/conversation-pipeline/internal/llm"
)

// Kind is the closed set of tool names the model may invoke. Dispatch is
// an exhaustive switch over this set; unknown names produce a structured
// failure result rather than a panic.
type Kind string

const (
	KindBuscarProduto        Kind = "buscarProduto"
	KindCriarVenda           Kind = "criarVenda"
	KindRegistrarInteresse   Kind = "registrarInteresse"
	KindCapturarLead         Kind = "capturarLead"
	KindSolicitarOrcamento   Kind = "solicitarOrcamento"
	KindTransferirHumano     Kind = "transferirHumano"
	KindSolicitarVerificacao Kind = "solicitarVerificacaoHumana"
	KindEncerrarConversa     Kind = "encerrarConversa"
)

// Scope carries the tenant/conversation identity every tool runs under.
type Scope struct {
	TenantID       string
	ConversationID string
	CustomerID     string
	AgentID        string
}

// AttachmentKind distinguishes deliverable media types.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is media the orchestrator should deliver to the customer
// out-of-band. Its URL never appears in the model-visible result.
type Attachment struct {
	Kind    AttachmentKind
	URL     string
	Caption string
}

// Invocation is one requested tool call.
type Invocation struct {
	Kind Kind
	Args json.RawMessage
}

// Result is the discriminated outcome of a tool execution.
type Result struct {
	Kind    Kind
	Success bool
	Message string
	Data    map[string]any

	// Attachment, when set, is delivered by the orchestrator itself.
	Attachment *Attachment

	// FollowUp, when set, is executed automatically without model
	// involvement so the conversation always reaches a defined state.
	FollowUp *Invocation
}

// ModelPayload renders the sanitized, model-visible JSON for the result.
// Attachments are deliberately excluded.
func (r Result) ModelPayload() string {
	payload := map[string]any{
		"success": r.Success,
	}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	for k, v := range r.Data {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false,"message":"internal error"}`
	}
	return string(data)
}

// Failure builds a structured failure result the model can react to.
func Failure(kind Kind, message string) Result {
	return Result{Kind: kind, Success: false, Message: message}
}

// Catalog returns the tool definitions offered to the completion service.
func Catalog() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        string(KindBuscarProduto),
			Description: "Busca produtos no catálogo da loja por termo e cor opcional. Retorna preço, estoque e disponibilidade.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"termo": {Type: jsonschema.String, Description: "Termo de busca, ex: camiseta"},
					"cor":   {Type: jsonschema.String, Description: "Cor desejada, ex: azul"},
				},
				Required: []string{"termo"},
			},
		},
		{
			Name:        string(KindCriarVenda),
			Description: "Registra uma venda confirmada pelo cliente.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"produto":     {Type: jsonschema.String, Description: "Nome do produto vendido"},
					"quantidade":  {Type: jsonschema.Integer, Description: "Quantidade vendida"},
					"valor_total": {Type: jsonschema.Number, Description: "Valor total da venda"},
				},
				Required: []string{"produto"},
			},
		},
		{
			Name:        string(KindRegistrarInteresse),
			Description: "Registra interesse do cliente em um produto para acompanhamento posterior.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"produto":     {Type: jsonschema.String, Description: "Produto de interesse"},
					"observacoes": {Type: jsonschema.String, Description: "Observações adicionais"},
				},
				Required: []string{"produto"},
			},
		},
		{
			Name:        string(KindCapturarLead),
			Description: "Captura dados de contato do cliente como lead.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"nome":        {Type: jsonschema.String, Description: "Nome do cliente"},
					"telefone":    {Type: jsonschema.String, Description: "Telefone de contato"},
					"email":       {Type: jsonschema.String, Description: "E-mail de contato"},
					"observacoes": {Type: jsonschema.String, Description: "Observações"},
				},
				Required: []string{"nome"},
			},
		},
		{
			Name:        string(KindSolicitarOrcamento),
			Description: "Solicita um orçamento personalizado para o cliente.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"descricao": {Type: jsonschema.String, Description: "Descrição do que o cliente precisa"},
				},
				Required: []string{"descricao"},
			},
		},
		{
			Name:        string(KindTransferirHumano),
			Description: "Transfere a conversa para atendimento humano.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"motivo": {Type: jsonschema.String, Description: "Motivo da transferência"},
				},
			},
		},
		{
			Name:        string(KindSolicitarVerificacao),
			Description: "Solicita verificação humana sobre disponibilidade de produto ou informação incerta.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"produto": {Type: jsonschema.String, Description: "Produto a verificar"},
					"motivo":  {Type: jsonschema.String, Description: "O que precisa ser verificado"},
				},
			},
		},
		{
			Name:        string(KindEncerrarConversa),
			Description: "Encerra a conversa quando o atendimento foi concluído.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"motivo": {Type: jsonschema.String, Description: "Motivo do encerramento"},
				},
			},
		},
	}
}
