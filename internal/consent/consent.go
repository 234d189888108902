// Package consent keeps the LGPD authorization ledger. Grants only ever
// widen: a recorded flag is never cleared by a later, narrower decision.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/imobia/atende/internal/models"
	"github.com/imobia/atende/internal/validate"
)

// ErrPersistence wraps store failures from Record so callers can tell them
// apart from bad input and retry.
var ErrPersistence = errors.New("consent: persistence failure")

// Decision is what the participant chose from the consent menu.
type Decision string

const (
	DecisionComplete Decision = "complete"  // data processing and document sharing
	DecisionDataOnly Decision = "data_only" // data processing only
	DecisionDocsOnly Decision = "docs_only" // document sharing only
)

// Opts configures a Ledger.
type Opts struct {
	DB            *gorm.DB
	PolicyVersion string
	PolicyLink    string
	Origin        string // default "whatsapp"
}

// Ledger reads and writes consent records.
type Ledger struct {
	db            *gorm.DB
	policyVersion string
	policyLink    string
	origin        string
}

func NewLedger(opts Opts) *Ledger {
	if opts.Origin == "" {
		opts.Origin = "whatsapp"
	}
	return &Ledger{
		db:            opts.DB,
		policyVersion: opts.PolicyVersion,
		policyLink:    opts.PolicyLink,
		origin:        opts.Origin,
	}
}

// Check returns the current status for a national id. Store failures come
// back as ConsentPending rather than an error: an unreadable ledger must
// never block the conversation, it only means the menu is shown again.
func (l *Ledger) Check(ctx context.Context, id validate.ID) models.ConsentStatus {
	var rec models.ConsentRecord
	err := l.db.WithContext(ctx).
		Where("national_id = ?", id.Digits).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		return models.ConsentPending
	}
	return rec.Status
}

// RecordOpts carries the inputs for one consent registration.
type RecordOpts struct {
	ID        validate.ID
	Name      string
	Phone     string
	Decision  Decision
	MessageID string
	Notes     string
}

// Record registers a decision. Repeat decisions are idempotent, and a
// narrower decision after a wider one only adds flags, never removes them.
// Returns the resulting record and whether a new row was created.
func (l *Ledger) Record(ctx context.Context, opts RecordOpts) (*models.ConsentRecord, bool, error) {
	grantData := opts.Decision == DecisionComplete || opts.Decision == DecisionDataOnly
	grantDocs := opts.Decision == DecisionComplete || opts.Decision == DecisionDocsOnly
	// Webhook sender ids arrive in mixed shapes; the ledger stores the
	// phone as bare digits.
	opts.Phone = validate.DigitsOnly(opts.Phone)
	now := time.Now()

	var rec models.ConsentRecord
	err := l.db.WithContext(ctx).
		Where("national_id = ?", opts.ID.Digits).
		Order("id DESC").
		First(&rec).Error

	switch {
	case err == nil:
		changed := false
		if grantData && !rec.DataProcessing {
			rec.DataProcessing = true
			rec.DataProcessingAt = &now
			changed = true
		}
		if grantDocs && !rec.DocumentSharing {
			rec.DocumentSharing = true
			rec.DocumentsAt = &now
			changed = true
		}
		if !changed {
			return &rec, false, nil
		}
		rec.Status = rec.ComputeStatus()
		rec.PolicyVersion = l.policyVersion
		if opts.MessageID != "" {
			rec.MessageID = opts.MessageID
		}
		if err := l.db.WithContext(ctx).Save(&rec).Error; err != nil {
			return nil, false, fmt.Errorf("%w: update %s: %v", ErrPersistence, opts.ID.Masked(), err)
		}
		return &rec, false, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = models.ConsentRecord{
			NationalID:      opts.ID.Digits,
			Name:            opts.Name,
			Phone:           opts.Phone,
			DataProcessing:  grantData,
			DocumentSharing: grantDocs,
			PolicyVersion:   l.policyVersion,
			Origin:          l.origin,
			MessageID:       opts.MessageID,
			Notes:           opts.Notes,
		}
		if grantData {
			rec.DataProcessingAt = &now
		}
		if grantDocs {
			rec.DocumentsAt = &now
		}
		rec.Status = rec.ComputeStatus()
		if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return nil, false, fmt.Errorf("%w: create %s: %v", ErrPersistence, opts.ID.Masked(), err)
		}
		return &rec, true, nil

	default:
		return nil, false, fmt.Errorf("%w: lookup %s: %v", ErrPersistence, opts.ID.Masked(), err)
	}
}

// PolicyMessage is the plain-text consent menu sent when the interactive
// list cannot be delivered.
func (l *Ledger) PolicyMessage(name string) string {
	link := l.policyLink
	if link == "" {
		link = "https://imobia.com.br/politica-de-privacidade"
	}
	return fmt.Sprintf(
		"Olá, %s! 👋\n\n"+
			"Para prosseguir com sua locação, precisamos da sua concordância sobre "+
			"o tratamento de dados pessoais e o envio de documentos, conforme a "+
			"Lei Geral de Proteção de Dados (LGPD).\n\n"+
			"Responda com o número da opção desejada:\n\n"+
			"1️⃣ Concordo com tudo e quero prosseguir\n"+
			"2️⃣ Concordo apenas com o tratamento de dados\n"+
			"3️⃣ Concordo apenas com o envio de documentos\n"+
			"4️⃣ Não concordo\n\n"+
			"Política de privacidade: %s",
		name, link)
}
