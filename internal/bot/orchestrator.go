// Package bot ties the flow together: it receives parsed webhook messages,
// runs them through identity resolution, the consent gate and the collection
// pipeline, and sends the replies back out.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/imobia/atende/internal/alert"
	"github.com/imobia/atende/internal/classify"
	"github.com/imobia/atende/internal/collect"
	"github.com/imobia/atende/internal/consent"
	"github.com/imobia/atende/internal/identity"
	"github.com/imobia/atende/internal/models"
	"github.com/imobia/atende/internal/session"
	"github.com/imobia/atende/internal/validate"
	"github.com/imobia/atende/internal/wa"
)

// Resolver is the identity lookup the orchestrator depends on.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (identity.Resolution, error)
}

// Interpreter reads intent out of a first-contact message.
type Interpreter interface {
	Interpret(ctx context.Context, message string) classify.Intent
}

// Recorder is the transcript surface the orchestrator writes through.
type Recorder interface {
	Start(ctx context.Context, phone, name string) (string, error)
	ActiveByPhone(ctx context.Context, phone string) (string, error)
	Append(ctx context.Context, conversationID string, sender models.Sender, content string) error
	SetIdentity(ctx context.Context, conversationID, name, nationalID string) error
	LinkNegotiation(ctx context.Context, conversationID string, negotiationID uint) error
	Finalize(ctx context.Context, conversationID string) error
}

// Consolidator trims a finalized transcript.
type Consolidator interface {
	Consolidate(ctx context.Context, conversationID string) error
}

// Opts wires an Orchestrator.
type Opts struct {
	DB            *gorm.DB
	Sessions      *session.Manager
	Identity      Resolver
	Consent       *consent.Ledger
	Pipeline      *collect.Pipeline
	Recorder      Recorder
	Consolidator  Consolidator
	Sender        wa.Sender
	Interpreter   Interpreter
	OperatorPhone string // notified when a collection completes
	ContactPhone  string // shown to participants on hand-off
}

// Orchestrator drives one conversation turn per inbound message. All state
// for a phone lives in its session; the orchestrator itself is stateless
// and safe for concurrent use.
type Orchestrator struct {
	db            *gorm.DB
	sessions      *session.Manager
	identity      Resolver
	consent       *consent.Ledger
	pipeline      *collect.Pipeline
	recorder      Recorder
	consolidator  Consolidator
	sender        wa.Sender
	interpreter   Interpreter
	operatorPhone string
	contactPhone  string

	background sync.WaitGroup
}

func New(opts Opts) *Orchestrator {
	return &Orchestrator{
		db:            opts.DB,
		sessions:      opts.Sessions,
		identity:      opts.Identity,
		consent:       opts.Consent,
		pipeline:      opts.Pipeline,
		recorder:      opts.Recorder,
		consolidator:  opts.Consolidator,
		sender:        opts.Sender,
		interpreter:   opts.Interpreter,
		operatorPhone: opts.OperatorPhone,
		contactPhone:  opts.ContactPhone,
	}
}

// Flush waits for in-flight background work (consent writes, finalization).
// Called on shutdown and by tests.
func (o *Orchestrator) Flush() {
	o.background.Wait()
}

// SessionStats reports live session counts by stage.
func (o *Orchestrator) SessionStats() map[session.Stage]int {
	return o.sessions.Stats()
}

// HandleInbound processes one webhook message end to end. It never returns
// an error to the webhook: failures are logged, alerted, or absorbed into a
// re-prompt, and the gateway always gets a 200 so it does not redeliver.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg wa.Inbound) {
	o.sessions.With(msg.Phone, func(s *session.Session, fresh bool) {
		if fresh {
			s.Name = msg.Name
		}
		o.ensureConversation(ctx, s)
		o.logMessage(ctx, s, inboundSender(s), msg.Text)

		if msg.MessageID != "" {
			if err := o.sender.MarkRead(ctx, msg.Phone, msg.MessageID); err != nil {
				log.Printf("bot: mark read for %s: %v", msg.Phone, err)
			}
		}

		var reply string
		switch s.Stage {
		case session.StageInitial:
			reply = o.initial(ctx, s, msg)
		case session.StageConsent:
			reply = o.consentStage(ctx, s, msg)
		case session.StageComplete, session.StageDisqualified:
			reply = fmt.Sprintf("Seu atendimento já foi encaminhado. "+
				"Qualquer dúvida, entre em contato: *%s*", o.contactPhone)
		default:
			reply = o.collectStage(ctx, s, msg)
		}

		if reply == "" {
			log.Printf("bot: no reply produced for %s at stage %s", msg.Phone, s.Stage)
			return
		}
		o.reply(ctx, s, reply)
	})
}

// inboundSender classifies who is talking in this session.
func inboundSender(s *session.Session) models.Sender {
	if s.Role == "operator" {
		return models.SenderOperator
	}
	return models.SenderCustomer
}

func (o *Orchestrator) ensureConversation(ctx context.Context, s *session.Session) {
	if s.ConversationID != "" {
		return
	}
	id, err := o.recorder.ActiveByPhone(ctx, s.Phone)
	if err != nil {
		log.Printf("bot: active conversation for %s: %v", s.Phone, err)
	}
	if id == "" {
		id, err = o.recorder.Start(ctx, s.Phone, s.Name)
		if err != nil {
			log.Printf("bot: start conversation for %s: %v", s.Phone, err)
			return
		}
	}
	s.ConversationID = id
}

func (o *Orchestrator) logMessage(ctx context.Context, s *session.Session, sender models.Sender, content string) {
	if s.ConversationID == "" {
		return
	}
	if err := o.recorder.Append(ctx, s.ConversationID, sender, content); err != nil {
		log.Printf("bot: append to %s: %v", s.ConversationID, err)
	}
}

func (o *Orchestrator) reply(ctx context.Context, s *session.Session, text string) {
	o.logMessage(ctx, s, models.SenderSystem, text)
	err := o.sender.SendText(ctx, s.Phone, text)
	switch {
	case err == wa.ErrDuplicate:
	case err != nil:
		log.Printf("bot: send to %s: %v", s.Phone, err)
	}
}

// -------------------------------------------------------------------------
// Initial stage: find out who is talking
// -------------------------------------------------------------------------

const askForID = "Olá! Eu sou a Bia, assistente virtual da Imobia. 😊\n\n" +
	"Para começar seu atendimento, me envie seu CPF (somente números).\n\n" +
	"Exemplo: 12345678901"

func (o *Orchestrator) initial(ctx context.Context, s *session.Session, msg wa.Inbound) string {
	intent := o.interpreter.Interpret(ctx, msg.Text)
	if intent.NationalID == "" {
		if found := validate.FindNationalID(msg.Text); found != "" {
			intent.NationalID = found
		}
	}

	if intent.NationalID == "" {
		if intent.Greeting && intent.Reply != "" {
			return intent.Reply
		}
		return askForID
	}

	res, err := o.identity.Resolve(ctx, intent.NationalID)
	if err == validate.ErrInvalidNationalID {
		return "❌ *CPF inválido*\n\nPor favor, digite um CPF válido com 11 números:\n\n" +
			"Exemplo: 123.456.789-00 ou 12345678900"
	}
	if err != nil {
		log.Printf("bot: resolve id for %s: %v", s.Phone, err)
		return "Estamos com uma instabilidade no momento. Pode me enviar seu CPF novamente em instantes?"
	}

	s.NationalID = res.ID.Digits
	if s.ConversationID != "" {
		if err := o.recorder.SetIdentity(ctx, s.ConversationID, s.Name, res.ID.Digits); err != nil {
			log.Printf("bot: set identity on %s: %v", s.ConversationID, err)
		}
	}

	switch res.Role {
	case identity.RoleOperator:
		return o.operator(s, res)
	case identity.RoleCustomer:
		s.Name = res.Customer.Name
		return o.consentGate(ctx, s, res.Customer.Name)
	default:
		return o.consentGate(ctx, s, s.Name)
	}
}

func (o *Orchestrator) operator(s *session.Session, res identity.Resolution) string {
	s.Role = "operator"
	op := res.Operator
	if !op.Active {
		s.Transition(session.StageComplete)
		return fmt.Sprintf("Olá, %s. Seu cadastro de atendente está inativo no momento. "+
			"Procure o administrador do sistema para reativá-lo.", op.FullName)
	}
	s.Transition(session.StageComplete)
	return fmt.Sprintf("Olá, %s! 👋 Identifiquei seu cadastro de atendente (%s). "+
		"Este canal atende clientes; use o painel interno para acompanhar as negociações.",
		op.FullName, op.Sector)
}

// consentGate decides whether the consent menu is needed before collection.
func (o *Orchestrator) consentGate(ctx context.Context, s *session.Session, name string) string {
	if name == "" {
		name = "tudo bem"
	}
	id, _ := validate.NationalID(s.NationalID)
	status := o.consent.Check(ctx, id)

	switch status {
	case models.ConsentComplete, models.ConsentDataOnly:
		// Already on record: skip the menu.
		s.Transition(session.StageEmail)
		return fmt.Sprintf("Olá, %s! 👋 Encontrei sua autorização já registrada, vamos direto ao ponto.\n\n%s",
			name, o.pipeline.Prompt(session.StageEmail))
	case models.ConsentRevoked:
		s.Transition(session.StageComplete)
		return fmt.Sprintf("Identificamos que você revogou o consentimento de uso de dados. "+
			"Para reativar seu atendimento, fale com nossa equipe: *%s*", o.contactPhone)
	default:
		s.Transition(session.StageConsent)
		return o.consent.PolicyMessage(name)
	}
}

// -------------------------------------------------------------------------
// Consent stage
// -------------------------------------------------------------------------

func (o *Orchestrator) consentStage(ctx context.Context, s *session.Session, msg wa.Inbound) string {
	answer := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(msg.Text, "[MENU]")))

	var decision consent.Decision
	switch {
	case answer == "1" || strings.Contains(answer, "tudo"):
		decision = consent.DecisionComplete
	case answer == "2" || strings.Contains(answer, "dados"):
		decision = consent.DecisionDataOnly
	case answer == "3" || strings.Contains(answer, "documentos"):
		decision = consent.DecisionDocsOnly
	case answer == "4" || strings.HasPrefix(answer, "não") || strings.HasPrefix(answer, "nao"):
		// Refusal is never written to the ledger; the record only holds
		// grants.
		s.Transition(session.StageComplete)
		o.finishConversation(s)
		return fmt.Sprintf("Tudo bem, respeitamos sua decisão. 🙏\n\n"+
			"Sem a autorização não conseguimos prosseguir por aqui, mas nossa equipe "+
			"pode te atender pelo telefone: *%s*", o.contactPhone)
	default:
		return "Não entendi sua resposta. Por favor, responda com o número de uma das opções (1 a 4)."
	}

	o.recordConsent(s, msg, decision)

	if decision == consent.DecisionDocsOnly {
		// Document sharing alone does not authorize collecting personal
		// data, so the menu stays open for the missing grant.
		return "✅ Autorização para documentos registrada!\n\n" +
			"Para seguirmos com o cadastro, preciso também da sua concordância com o " +
			"tratamento de dados. Responda *1* ou *2* para autorizar."
	}

	s.Transition(session.StageEmail)
	return "✅ Concordância registrada! Seus dados serão tratados conforme nossa política de privacidade.\n\n" +
		o.pipeline.Prompt(session.StageEmail)
}

// retryBackoff spaces out background write retries. Tests replace it.
var retryBackoff = func(attempt int) {
	time.Sleep(time.Duration(attempt) * time.Second)
}

// recordConsent persists the decision off the reply path. The write is
// retried a few times; giving up raises an alert instead of surfacing to
// the participant.
func (o *Orchestrator) recordConsent(s *session.Session, msg wa.Inbound, decision consent.Decision) {
	id, err := validate.NationalID(s.NationalID)
	if err != nil {
		log.Printf("bot: consent without id for %s", s.Phone)
		return
	}
	opts := consent.RecordOpts{
		ID:        id,
		Name:      s.Name,
		Phone:     s.Phone,
		Decision:  decision,
		MessageID: msg.MessageID,
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			if attempt > 0 {
				retryBackoff(attempt)
			}
			if _, _, lastErr = o.consent.Record(ctx, opts); lastErr == nil {
				return
			}
			log.Printf("bot: consent write for %s attempt %d: %v", id.Masked(), attempt+1, lastErr)
		}
		if o.db != nil {
			_, err := alert.Raise(o.db, "consent", "consent write failed after retries", alert.RaiseOpts{
				Phone:    s.Phone,
				Detail:   fmt.Sprintf("decision %s for %s: %v", decision, id.Masked(), lastErr),
				Priority: "urgent",
			})
			if err != nil {
				log.Printf("bot: raise consent alert: %v", err)
			}
		}
	}()
}

// -------------------------------------------------------------------------
// Collection stages
// -------------------------------------------------------------------------

func (o *Orchestrator) collectStage(ctx context.Context, s *session.Session, msg wa.Inbound) string {
	out := o.pipeline.Process(ctx, s, msg.Text)

	switch {
	case out.Completed:
		o.completeCollection(ctx, s)
	case out.Disqualified, out.HandedOff:
		o.finishConversation(s)
	}
	return out.Reply
}

// completeCollection hands the persistence off the reply path the same way
// consent writes go out: bounded retry in the background, an alert when the
// write never lands. The session fields are copied before the handler
// releases the lock.
func (o *Orchestrator) completeCollection(_ context.Context, s *session.Session) {
	neg := models.Negotiation{
		Name:       s.Name,
		Phone:      s.Phone,
		Email:      s.Data.Email,
		NationalID: s.NationalID,
		Address:    collect.FullAddress(s.Data),
		Age:        s.Data.Age,
	}
	data := s.Data
	convID := s.ConversationID

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			if attempt > 0 {
				retryBackoff(attempt)
			}
			if lastErr = o.persistNegotiation(ctx, neg, data, convID); lastErr == nil {
				return
			}
			log.Printf("bot: negotiation write for %s attempt %d: %v", neg.Phone, attempt+1, lastErr)
		}
		if _, err := alert.Raise(o.db, "bot", "negotiation write failed after retries", alert.RaiseOpts{
			Phone:    neg.Phone,
			Detail:   lastErr.Error(),
			Priority: "urgent",
		}); err != nil {
			log.Printf("bot: raise negotiation alert: %v", err)
		}
	}()

	o.notifyOperator(s)
	o.finishConversation(s)
}

// persistNegotiation upserts the customer profile, creates the negotiation
// and links it back to the transcript. The customer upsert is non-fatal.
func (o *Orchestrator) persistNegotiation(ctx context.Context, neg models.Negotiation, data session.Collected, convID string) error {
	o.upsertCustomer(ctx, &neg, data)

	if err := o.db.WithContext(ctx).Create(&neg).Error; err != nil {
		return fmt.Errorf("create negotiation: %w", err)
	}
	if convID != "" {
		if err := o.recorder.LinkNegotiation(ctx, convID, neg.ID); err != nil {
			log.Printf("bot: link negotiation: %v", err)
		}
	}
	return nil
}

// upsertCustomer writes the collected profile to the registry, updating an
// existing customer row when the id is already known.
func (o *Orchestrator) upsertCustomer(ctx context.Context, neg *models.Negotiation, data session.Collected) {
	if o.db == nil || neg.NationalID == "" {
		return
	}
	id, err := validate.NationalID(neg.NationalID)
	if err != nil {
		return
	}

	cust := models.Customer{
		Name:       neg.Name,
		NationalID: id.Digits,
		Email:      data.Email,
		Phone:      neg.Phone,
		BirthDate:  data.BirthDate,
		Street:     data.Street,
		District:   data.District,
		City:       data.City,
		Region:     data.Region,
		PostalCode: data.PostalCode,
		HouseNo:    data.HouseNo,
		Complement: data.Complement,
	}

	var existing models.Customer
	err = o.db.WithContext(ctx).
		Where("national_id IN ?", []string{id.Digits, id.Formatted}).
		First(&existing).Error
	switch {
	case err == nil:
		cust.ID = existing.ID
		if cust.Name == "" {
			cust.Name = existing.Name
		}
		if err := o.db.WithContext(ctx).Save(&cust).Error; err != nil {
			log.Printf("bot: update customer %s: %v", id.Masked(), err)
			return
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := o.db.WithContext(ctx).Create(&cust).Error; err != nil {
			log.Printf("bot: create customer %s: %v", id.Masked(), err)
			return
		}
	default:
		log.Printf("bot: customer lookup %s: %v", id.Masked(), err)
		return
	}
	neg.CustomerID = &cust.ID
}

func (o *Orchestrator) notifyOperator(s *session.Session) {
	if o.operatorPhone == "" {
		return
	}
	text := fmt.Sprintf("✅ *Dados do cliente coletados com sucesso!*\n\n"+
		"👤 %s\n📞 %s\n📧 %s\n🏠 %s\n\n"+
		"Status: coletando documentos.",
		s.Name, s.Phone, s.Data.Email, collect.FullAddress(s.Data))

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.sender.SendText(ctx, o.operatorPhone, text); err != nil && err != wa.ErrDuplicate {
			log.Printf("bot: notify operator: %v", err)
		}
	}()
}

// finishConversation finalizes and consolidates the transcript off the
// reply path. The session stays behind so follow-up messages get the
// closed-out notice; the expiry sweep reclaims it.
func (o *Orchestrator) finishConversation(s *session.Session) {
	convID := s.ConversationID
	if convID == "" {
		return
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := o.recorder.Finalize(ctx, convID); err != nil {
			log.Printf("bot: finalize %s: %v", convID, err)
			return
		}
		if o.consolidator != nil {
			if err := o.consolidator.Consolidate(ctx, convID); err != nil {
				log.Printf("bot: consolidate %s: %v", convID, err)
			}
		}
	}()
}
