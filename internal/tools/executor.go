package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
	"github.com/atendai/conversation-pipeline/pkg/metrics"
)

// Executor runs tool invocations against the store and emits their
// integration events. Effects persisted by a tool are never undone by
// later completion failures.
type Executor struct {
	store    *store.Store
	webhooks *webhook.Dispatcher
	logger   *logger.Logger
}

// NewExecutor creates an executor.
func NewExecutor(st *store.Store, wh *webhook.Dispatcher, log *logger.Logger) *Executor {
	return &Executor{store: st, webhooks: wh, logger: log}
}

// Execute dispatches the invocation to its implementation. Execution
// errors are converted into structured failure results so the exchange
// never aborts on a single bad tool call.
func (e *Executor) Execute(ctx context.Context, scope Scope, inv Invocation) Result {
	var result Result
	switch inv.Kind {
	case KindBuscarProduto:
		result = e.buscarProduto(ctx, scope, inv.Args)
	case KindCriarVenda:
		result = e.criarVenda(ctx, scope, inv.Args)
	case KindRegistrarInteresse:
		result = e.registrarInteresse(ctx, scope, inv.Args)
	case KindCapturarLead:
		result = e.capturarLead(ctx, scope, inv.Args)
	case KindSolicitarOrcamento:
		result = e.solicitarOrcamento(ctx, scope, inv.Args)
	case KindTransferirHumano:
		result = e.transferirHumano(ctx, scope, inv.Args)
	case KindSolicitarVerificacao:
		result = e.solicitarVerificacao(ctx, scope, inv.Args)
	case KindEncerrarConversa:
		result = e.encerrarConversa(ctx, scope, inv.Args)
	default:
		result = Failure(inv.Kind, fmt.Sprintf("ferramenta desconhecida: %s", inv.Kind))
	}

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.ToolExecutions.WithLabelValues(string(inv.Kind), outcome).Inc()

	return result
}

type buscarProdutoArgs struct {
	Termo string `json:"termo"`
	Cor   string `json:"cor"`
}

func (e *Executor) buscarProduto(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args buscarProdutoArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Failure(KindBuscarProduto, "argumentos inválidos para busca de produto")
	}

	products, err := e.store.SearchProducts(ctx, scope.TenantID, args.Termo, args.Cor)
	if err != nil {
		e.logger.Error("product search failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return Failure(KindBuscarProduto, "não foi possível consultar o catálogo agora")
	}

	if len(products) == 0 {
		// Uncertain outcome: hand off to human verification automatically
		// so the customer never stays on an implicit "we don't have it".
		return Result{
			Kind:    KindBuscarProduto,
			Success: true,
			Message: "nenhum produto encontrado; verificação humana solicitada",
			Data: map[string]any{
				"found": false,
				"termo": args.Termo,
				"cor":   args.Cor,
			},
			FollowUp: &Invocation{
				Kind: KindSolicitarVerificacao,
				Args: mustMarshal(map[string]string{
					"produto": args.Termo,
					"motivo":  "produto não encontrado no catálogo",
				}),
			},
		}
	}

	items := make([]map[string]any, 0, len(products))
	var attachment *Attachment
	for _, p := range products {
		items = append(items, map[string]any{
			"nome":       p.Name,
			"descricao":  p.Description,
			"cor":        p.Color,
			"preco":      p.Price,
			"estoque":    p.Stock,
			"disponivel": p.Stock > 0,
		})
		if attachment == nil && p.ImageURL != "" {
			attachment = &Attachment{
				Kind:    AttachmentImage,
				URL:     p.ImageURL,
				Caption: p.Name,
			}
		}
	}

	return Result{
		Kind:    KindBuscarProduto,
		Success: true,
		Data: map[string]any{
			"found":    true,
			"produtos": items,
		},
		Attachment: attachment,
	}
}

type criarVendaArgs struct {
	Produto    string  `json:"produto"`
	Quantidade int     `json:"quantidade"`
	ValorTotal float64 `json:"valor_total"`
}

func (e *Executor) criarVenda(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args criarVendaArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Produto == "" {
		return Failure(KindCriarVenda, "argumentos inválidos para criação de venda")
	}
	if args.Quantidade <= 0 {
		args.Quantidade = 1
	}

	now := time.Now()
	order := &model.Order{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       scope.TenantID,
		ConversationID: scope.ConversationID,
		CustomerID:     scope.CustomerID,
		ProductName:    args.Produto,
		Quantity:       args.Quantidade,
		Total:          args.ValorTotal,
		Status:         model.OrderActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		e.logger.Error("order creation failed", zap.String("conversation_id", scope.ConversationID), zap.Error(err))
		return Failure(KindCriarVenda, "não foi possível registrar a venda")
	}

	e.audit(ctx, scope, model.AuditSaleCompleted, args.Produto)
	e.webhooks.Dispatch(scope.TenantID, model.EventSaleCompleted, map[string]any{
		"order_id":        order.ID,
		"conversation_id": scope.ConversationID,
		"customer_id":     scope.CustomerID,
		"product":         args.Produto,
		"quantity":        args.Quantidade,
		"total":           args.ValorTotal,
	})

	return Result{
		Kind:    KindCriarVenda,
		Success: true,
		Message: "venda registrada",
		Data:    map[string]any{"order_id": order.ID},
	}
}

type registrarInteresseArgs struct {
	Produto     string `json:"produto"`
	Observacoes string `json:"observacoes"`
}

func (e *Executor) registrarInteresse(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args registrarInteresseArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Produto == "" {
		return Failure(KindRegistrarInteresse, "argumentos inválidos para registro de interesse")
	}

	interest := &model.CustomerInterest{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       scope.TenantID,
		ConversationID: scope.ConversationID,
		CustomerID:     scope.CustomerID,
		ProductName:    args.Produto,
		Notes:          args.Observacoes,
		CreatedAt:      time.Now(),
	}
	if err := e.store.CreateInterest(ctx, interest); err != nil {
		e.logger.Error("interest capture failed", zap.String("conversation_id", scope.ConversationID), zap.Error(err))
		return Failure(KindRegistrarInteresse, "não foi possível registrar o interesse")
	}

	e.webhooks.Dispatch(scope.TenantID, model.EventCustomerInterest, map[string]any{
		"conversation_id": scope.ConversationID,
		"customer_id":     scope.CustomerID,
		"product":         args.Produto,
	})

	return Result{Kind: KindRegistrarInteresse, Success: true, Message: "interesse registrado"}
}

type capturarLeadArgs struct {
	Nome        string `json:"nome"`
	Telefone    string `json:"telefone"`
	Email       string `json:"email"`
	Observacoes string `json:"observacoes"`
}

func (e *Executor) capturarLead(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args capturarLeadArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Nome == "" {
		return Failure(KindCapturarLead, "argumentos inválidos para captura de lead")
	}

	phone := args.Telefone
	if phone == "" {
		phone = scope.CustomerID
	}

	lead := &model.Lead{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       scope.TenantID,
		ConversationID: scope.ConversationID,
		Name:           args.Nome,
		Phone:          phone,
		Email:          args.Email,
		Notes:          args.Observacoes,
		CreatedAt:      time.Now(),
	}
	if err := e.store.CreateLead(ctx, lead); err != nil {
		e.logger.Error("lead capture failed", zap.String("conversation_id", scope.ConversationID), zap.Error(err))
		return Failure(KindCapturarLead, "não foi possível capturar o lead")
	}

	e.audit(ctx, scope, model.AuditLeadCaptured, args.Nome)
	e.webhooks.Dispatch(scope.TenantID, model.EventLeadCaptured, map[string]any{
		"conversation_id": scope.ConversationID,
		"name":            args.Nome,
		"phone":           phone,
		"email":           args.Email,
	})

	return Result{Kind: KindCapturarLead, Success: true, Message: "lead capturado"}
}

type solicitarOrcamentoArgs struct {
	Descricao string `json:"descricao"`
}

func (e *Executor) solicitarOrcamento(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args solicitarOrcamentoArgs
	if err := json.Unmarshal(raw, &args); err != nil || args.Descricao == "" {
		return Failure(KindSolicitarOrcamento, "argumentos inválidos para solicitação de orçamento")
	}

	e.audit(ctx, scope, model.AuditQuoteRequested, args.Descricao)
	e.webhooks.Dispatch(scope.TenantID, model.EventQuoteRequested, map[string]any{
		"conversation_id": scope.ConversationID,
		"customer_id":     scope.CustomerID,
		"description":     args.Descricao,
	})

	return Result{Kind: KindSolicitarOrcamento, Success: true, Message: "orçamento solicitado à equipe"}
}

type transferirHumanoArgs struct {
	Motivo string `json:"motivo"`
}

func (e *Executor) transferirHumano(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args transferirHumanoArgs
	_ = json.Unmarshal(raw, &args)

	if err := e.store.SetStatus(ctx, scope.ConversationID, model.StatusHumanHandling); err != nil {
		e.logger.Error("human transfer failed", zap.String("conversation_id", scope.ConversationID), zap.Error(err))
		return Failure(KindTransferirHumano, "não foi possível transferir para humano")
	}

	e.audit(ctx, scope, model.AuditHumanTransfer, args.Motivo)
	e.webhooks.Dispatch(scope.TenantID, model.EventHumanTransfer, map[string]any{
		"conversation_id": scope.ConversationID,
		"customer_id":     scope.CustomerID,
		"reason":          args.Motivo,
	})

	return Result{Kind: KindTransferirHumano, Success: true, Message: "conversa transferida para atendimento humano"}
}

type solicitarVerificacaoArgs struct {
	Produto string `json:"produto"`
	Motivo  string `json:"motivo"`
}

func (e *Executor) solicitarVerificacao(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args solicitarVerificacaoArgs
	_ = json.Unmarshal(raw, &args)

	e.audit(ctx, scope, model.AuditVerificationRequested, args.Produto+": "+args.Motivo)
	e.webhooks.Dispatch(scope.TenantID, model.EventVerificationRequested, map[string]any{
		"conversation_id": scope.ConversationID,
		"customer_id":     scope.CustomerID,
		"product":         args.Produto,
		"reason":          args.Motivo,
	})

	return Result{
		Kind:    KindSolicitarVerificacao,
		Success: true,
		Message: "verificação humana solicitada; informe o cliente que a equipe confirmará em breve",
	}
}

type encerrarConversaArgs struct {
	Motivo string `json:"motivo"`
}

func (e *Executor) encerrarConversa(ctx context.Context, scope Scope, raw json.RawMessage) Result {
	var args encerrarConversaArgs
	_ = json.Unmarshal(raw, &args)

	if err := e.store.SetStatus(ctx, scope.ConversationID, model.StatusClosed); err != nil {
		e.logger.Error("conversation close failed", zap.String("conversation_id", scope.ConversationID), zap.Error(err))
		return Failure(KindEncerrarConversa, "não foi possível encerrar a conversa")
	}

	e.audit(ctx, scope, model.AuditAIConversationClosed, args.Motivo)
	e.webhooks.Dispatch(scope.TenantID, model.EventConversationClosed, map[string]any{
		"conversation_id": scope.ConversationID,
		"customer_id":     scope.CustomerID,
		"reason":          args.Motivo,
		"closed_by":       "ai",
	})

	return Result{Kind: KindEncerrarConversa, Success: true, Message: "conversa encerrada"}
}

func (e *Executor) audit(ctx context.Context, scope Scope, action model.AuditAction, detail string) {
	if err := e.store.AppendAudit(ctx, scope.TenantID, scope.ConversationID, action, detail); err != nil {
		e.logger.Error("audit write failed",
			zap.String("conversation_id", scope.ConversationID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
