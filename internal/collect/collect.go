// Package collect drives the staged data-collection pipeline: email, birth
// date, postal code, address and house number, in order. Each stage
// validates its input before the session moves on, so a malformed answer
// always re-prompts the same stage.
package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imobia/atende/internal/cep"
	"github.com/imobia/atende/internal/session"
	"github.com/imobia/atende/internal/validate"
)

// Lookup resolves a postal code. Satisfied by *cep.Client.
type Lookup interface {
	Lookup(ctx context.Context, raw string) (cep.Result, error)
}

// Outcome is what one Process call produced. Reply is always set.
type Outcome struct {
	Reply        string
	Completed    bool // all stages done, session ready to finalize
	Disqualified bool // terminal, participant cannot proceed
	HandedOff    bool // terminal, a human takes over
}

// Opts configures a Pipeline.
type Opts struct {
	Lookup       Lookup
	MinAge       int    // default 18
	MaxRetries   int    // per stage, 0 means unlimited
	ContactPhone string // shown on hand-off messages
}

// Pipeline holds the stage handlers. It keeps no per-conversation state;
// everything lives in the session.
type Pipeline struct {
	lookup       Lookup
	minAge       int
	maxRetries   int
	contactPhone string
}

func New(opts Opts) *Pipeline {
	if opts.MinAge == 0 {
		opts.MinAge = 18
	}
	if opts.ContactPhone == "" {
		opts.ContactPhone = "(14) 99999-9999"
	}
	return &Pipeline{
		lookup:       opts.Lookup,
		minAge:       opts.MinAge,
		maxRetries:   opts.MaxRetries,
		contactPhone: opts.ContactPhone,
	}
}

var yesWords = map[string]bool{
	"sim": true, "s": true, "yes": true, "correto": true, "certo": true, "✅": true,
}

var noWords = map[string]bool{
	"não": true, "nao": true, "no": true, "incorreto": true, "errado": true, "❌": true,
}

var skipWords = map[string]bool{
	"pular": true, "não": true, "nao": true, "sem": true, "nenhum": true, "": true,
}

// Prompt returns the opening message for a stage, used when the pipeline is
// entered rather than answered.
func (p *Pipeline) Prompt(stage session.Stage) string {
	switch stage {
	case session.StageEmail:
		return "📧 *Digite seu e-mail:*\n\nFormato: exemplo@email.com"
	case session.StageBirthDate:
		return "📅 *Digite sua data de nascimento:*\n\nFormato: DD/MM/AAAA\nExemplo: 15/03/1990"
	case session.StagePostalCode:
		return "🏠 *Digite seu CEP:*\n\nFormato: apenas números\nExemplo: 18035310"
	case session.StageStreet:
		return "📝 *Digite o nome da sua rua:*"
	case session.StageDistrict:
		return "📝 *Digite o seu bairro:*"
	case session.StageCity:
		return "📝 *Digite a sua cidade:*"
	case session.StageRegion:
		return "📝 *Digite a sigla do seu estado:*\n\nExemplo: SP"
	case session.StageHouseNumber:
		return "🔢 *Digite o número da sua residência:*\n\nExemplo: 123, 45A, S/N"
	case session.StageComplement:
		return "🏢 *Tem complemento? (apartamento, bloco, etc.)*\n\nDigite o complemento ou:\n➡️ *PULAR* - se não tem complemento"
	default:
		return ""
	}
}

// Process feeds one answer into the current stage. The caller holds the
// session lock.
func (p *Pipeline) Process(ctx context.Context, s *session.Session, input string) Outcome {
	switch s.Stage {
	case session.StageEmail:
		return p.email(s, input)
	case session.StageBirthDate:
		return p.birthDate(s, input)
	case session.StagePostalCode:
		return p.postalCode(ctx, s, input)
	case session.StageAddrConfirm:
		return p.addrConfirm(s, input)
	case session.StageStreet:
		return p.manualField(s, input, &s.Data.Street, session.StageDistrict)
	case session.StageDistrict:
		return p.manualField(s, input, &s.Data.District, session.StageCity)
	case session.StageCity:
		return p.manualField(s, input, &s.Data.City, session.StageRegion)
	case session.StageRegion:
		return p.region(s, input)
	case session.StageHouseNumber:
		return p.houseNumber(s, input)
	case session.StageComplement:
		return p.complement(s, input)
	default:
		return Outcome{Reply: "Desculpe, não entendi. Pode repetir?"}
	}
}

// retry bumps the per-stage counter and either re-prompts or hands off when
// the limit is exhausted.
func (p *Pipeline) retry(s *session.Session, reply string) Outcome {
	s.Retries++
	if p.maxRetries > 0 && s.Retries >= p.maxRetries {
		s.Transition(session.StageDisqualified)
		return Outcome{
			HandedOff: true,
			Reply: fmt.Sprintf("Vou te transferir para um de nossos atendentes para continuar o atendimento.\n\n"+
				"📞 Caso prefira, entre em contato: *%s*", p.contactPhone),
		}
	}
	return Outcome{Reply: reply}
}

func (p *Pipeline) email(s *session.Session, input string) Outcome {
	email, err := validate.Email(input)
	if err != nil {
		return p.retry(s, "❌ *E-mail inválido*\n\n"+
			"Por favor, digite um e-mail válido no formato:\n*exemplo@email.com*\n\n"+
			"📧 *Digite seu e-mail:*")
	}
	s.Data.Email = email
	s.Transition(session.StageBirthDate)
	return Outcome{Reply: fmt.Sprintf("✅ *E-mail confirmado:* %s\n\n%s", email, p.Prompt(session.StageBirthDate))}
}

func (p *Pipeline) birthDate(s *session.Session, input string) Outcome {
	input = strings.TrimSpace(input)
	birth, err := validate.BirthDate(input)
	switch {
	case errors.Is(err, validate.ErrInvalidFormat):
		return p.retry(s, "❌ *Data inválida*\n\n"+
			"Por favor, digite a data no formato correto:\n*DD/MM/AAAA*\n\n"+
			"Exemplo: 15/03/1990\n\n📅 *Digite sua data de nascimento:*")
	case errors.Is(err, validate.ErrInvalidCalendarDate):
		return p.retry(s, "❌ *Data inexistente*\n\n"+
			"A data informada não existe no calendário.\n\n"+
			"Por favor, verifique e digite novamente:\n\n"+
			"📅 *Digite sua data de nascimento:*\nFormato: DD/MM/AAAA")
	}

	age := validate.Age(birth, nowFunc())
	if age < p.minAge {
		s.Transition(session.StageDisqualified)
		return Outcome{
			Disqualified: true,
			Reply: fmt.Sprintf("⚠️ *Idade insuficiente*\n\n"+
				"Identificamos que você tem %d anos.\n\n"+
				"Para prosseguir com nossos serviços, é necessário ter pelo menos *%d anos*.\n\n"+
				"Para atendimento especializado, entre em contato:\n📞 *%s*",
				age, p.minAge, p.contactPhone),
		}
	}

	s.Data.BirthDate = input
	s.Data.Age = age
	s.Transition(session.StagePostalCode)
	return Outcome{Reply: fmt.Sprintf("✅ *Data confirmada:* %s (%d anos)\n\n%s",
		input, age, p.Prompt(session.StagePostalCode))}
}

func (p *Pipeline) postalCode(ctx context.Context, s *session.Session, input string) Outcome {
	res, err := p.lookup.Lookup(ctx, input)
	if errors.Is(err, validate.ErrInvalidPostalCode) {
		return p.retry(s, "❌ *CEP inválido*\n\n"+
			"Por favor, digite um CEP válido com 8 números:\n\n"+
			"Exemplo: 18035310 ou 18035-310\n\n🏠 *Digite seu CEP:*")
	}
	if err != nil {
		res.Status = cep.Unavailable
	}
	code, _ := validate.PostalCode(input)

	switch res.Status {
	case cep.NotFound:
		// Unknown code, but the participant can still spell the address
		// out; switch to manual entry rather than re-asking.
		s.Data.PostalCode = code
		s.Transition(session.StageStreet)
		return Outcome{Reply: fmt.Sprintf("❌ *CEP não encontrado*\n\n"+
			"O CEP %s não foi encontrado na base de dados, mas podemos continuar com o "+
			"endereço manualmente.\n\n%s", code, p.Prompt(session.StageStreet))}

	case cep.Unavailable:
		// Service down is not the participant's fault; fall through to
		// manual entry instead of re-asking for the same code.
		s.Data.PostalCode = code
		s.Transition(session.StageStreet)
		return Outcome{Reply: "⚠️ Não consegui consultar seu CEP agora, mas podemos continuar.\n\n" +
			p.Prompt(session.StageStreet)}

	default:
		s.Data.PostalCode = code
		s.Data.Street = res.Address.Street
		s.Data.District = res.Address.District
		s.Data.City = res.Address.City
		s.Data.Region = res.Address.Region
		s.Transition(session.StageAddrConfirm)
		return Outcome{Reply: fmt.Sprintf("✅ *Endereço encontrado:*\n\n"+
			"📍 *%s*\n🔢 *CEP:* %s\n\n"+
			"Este endereço está correto?\n\nDigite:\n"+
			"✅ *SIM* - para confirmar\n❌ *NÃO* - para informar o endereço correto",
			summary(s), code)}
	}
}

func (p *Pipeline) addrConfirm(s *session.Session, input string) Outcome {
	answer := strings.ToLower(strings.TrimSpace(input))
	switch {
	case yesWords[answer]:
		s.Transition(session.StageHouseNumber)
		return Outcome{Reply: fmt.Sprintf("✅ *Endereço confirmado!*\n\n🏠 *%s*\n\n%s",
			summary(s), p.Prompt(session.StageHouseNumber))}

	case noWords[answer]:
		// Discard the looked-up address and collect it field by field.
		s.Data.Street, s.Data.District, s.Data.City, s.Data.Region = "", "", "", ""
		s.Transition(session.StageStreet)
		return Outcome{Reply: "📝 *Endereço Manual*\n\n" +
			"Sem problema, vamos preencher o endereço juntos.\n\n" +
			p.Prompt(session.StageStreet)}

	default:
		return p.retry(s, fmt.Sprintf("📍 *Endereço encontrado:*\n*%s*\n\n"+
			"Esse é seu endereço?\n\n"+
			"✅ *SIM* - se o endereço está correto\n"+
			"❌ *NÃO* - se o endereço está incorreto", summary(s)))
	}
}

func (p *Pipeline) manualField(s *session.Session, input string, field *string, next session.Stage) Outcome {
	input = strings.TrimSpace(input)
	if input == "" {
		return p.retry(s, "Por favor, digite uma resposta.\n\n"+p.Prompt(s.Stage))
	}
	*field = input
	s.Transition(next)
	return Outcome{Reply: p.Prompt(next)}
}

func (p *Pipeline) region(s *session.Session, input string) Outcome {
	uf := strings.ToUpper(strings.TrimSpace(input))
	if len(uf) != 2 || strings.IndexFunc(uf, func(r rune) bool { return r < 'A' || r > 'Z' }) != -1 {
		return p.retry(s, "❌ *Estado inválido*\n\n"+
			"Digite a sigla com 2 letras.\n\nExemplo: SP")
	}
	s.Data.Region = uf
	s.Transition(session.StageHouseNumber)
	return Outcome{Reply: p.Prompt(session.StageHouseNumber)}
}

func (p *Pipeline) houseNumber(s *session.Session, input string) Outcome {
	input = strings.TrimSpace(input)
	if input == "" {
		return p.retry(s, "❌ *Número necessário*\n\n"+
			"Por favor, digite o número da sua residência:\n\n"+
			"Exemplo: 123, 45A, S/N\n\n🔢 *Digite o número:*")
	}
	s.Data.HouseNo = input
	s.Transition(session.StageComplement)
	return Outcome{Reply: p.Prompt(session.StageComplement)}
}

func (p *Pipeline) complement(s *session.Session, input string) Outcome {
	input = strings.TrimSpace(input)
	if !skipWords[strings.ToLower(input)] {
		s.Data.Complement = input
	}
	s.Transition(session.StageComplete)
	return Outcome{Completed: true, Reply: finalSummary(s)}
}

// summary renders "street, district, city/UF" for confirmation prompts.
func summary(s *session.Session) string {
	return fmt.Sprintf("%s, %s, %s/%s", s.Data.Street, s.Data.District, s.Data.City, s.Data.Region)
}

// FullAddress renders the complete collected address for persistence.
func FullAddress(d session.Collected) string {
	addr := fmt.Sprintf("%s, %s", d.Street, d.HouseNo)
	if d.Complement != "" {
		addr += ", " + d.Complement
	}
	addr += fmt.Sprintf(", %s, %s/%s, CEP: %s", d.District, d.City, d.Region, d.PostalCode)
	return addr
}

func finalSummary(s *session.Session) string {
	d := s.Data
	addr := fmt.Sprintf("%s, %s", d.Street, d.HouseNo)
	if d.Complement != "" {
		addr += ", " + d.Complement
	}
	code := d.PostalCode
	if len(code) == 8 {
		code = code[:5] + "-" + code[5:]
	}
	return fmt.Sprintf("✅ *Dados coletados com sucesso!*\n\n"+
		"📧 E-mail: %s\n"+
		"📅 Nascimento: %s (%d anos)\n"+
		"🏠 Endereço: %s\n%s, %s/%s\n"+
		"📮 CEP: %s\n\n"+
		"Em instantes um de nossos atendentes dará sequência ao seu atendimento. 📄",
		d.Email, d.BirthDate, d.Age, addr, d.District, d.City, d.Region, code)
}

// nowFunc is swapped in tests to pin age calculations.
var nowFunc = time.Now
