// internal/render/render.go
package render

import (
	"fmt"
	"strings"

	"github.com/kanbanflow/campaign-engine/internal/flow"
	"github.com/kanbanflow/campaign-engine/internal/model"
)

// Context supplies the substitution variables for one lead.
type Context struct {
	Lead      model.Lead
	StageName string
	TagsText  string
}

type variables struct {
	nome     string
	empresa  string
	etapa    string
	vendedor string
	tags     string
}

func contextVariables(ctx Context) variables {
	nome := ctx.Lead.Title
	if nome == "" {
		nome = ctx.Lead.Client
	}
	etapa := ctx.StageName
	if etapa == "" {
		etapa = ctx.Lead.Status
	}
	var vendedor string
	if ctx.Lead.AssignedTo != nil {
		vendedor = ctx.Lead.AssignedTo.Name
	}
	return variables{
		nome:     nome,
		empresa:  ctx.Lead.Client,
		etapa:    etapa,
		vendedor: vendedor,
		tags:     ctx.TagsText,
	}
}

func firstName(nome string) string {
	fields := strings.Fields(nome)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// resolveVariables applies the token table in order, once per token, as
// literal replacement. No recursive re-substitution.
func resolveVariables(raw string, v variables) string {
	tokens := []struct{ token, value string }{
		{"{nome}", v.nome},
		{"{empresa}", v.empresa},
		{"{etapa_funil}", v.etapa},
		{"{vendedor}", v.vendedor},
		{"{tags}", v.tags},
		{"[NOME_LEAD]", v.nome},
		{"[PRIMEIRO_NOME_LEAD]", firstName(v.nome)},
		{"[RAZAO_SOCIAL]", v.empresa},
		{"[NOME_MINHA_EMPRESA]", ""}, // reserved, unbound
		{"[TAGS]", v.tags},
	}
	out := raw
	for _, t := range tokens {
		out = strings.ReplaceAll(out, t.token, t.value)
	}
	return out
}

// Template renders a template into the outbound text for one recipient.
// Missing or malformed content degrades to empty strings per field; this
// never fails, a broken preview beats a broken send loop.
func Template(t model.MessageTemplate, ctx Context) string {
	v := contextVariables(ctx)

	switch t.Kind {
	case model.KindText:
		if t.Text == nil {
			return ""
		}
		return resolveVariables(t.Text.Text, v)

	case model.KindImage, model.KindVideo:
		if t.Media == nil {
			return ""
		}
		caption := resolveVariables(t.Media.Caption, v)
		media := t.Media.Locator()
		switch {
		case media != "" && caption != "":
			return caption + "\n\n" + media
		case caption != "":
			return caption
		default:
			return media
		}

	case model.KindButtons:
		if t.Buttons == nil {
			return ""
		}
		step := flow.StartStep(t.Buttons.Steps, t.Buttons.StartStepID)
		if step == nil {
			return ""
		}
		text := resolveVariables(step.Text, v)

		// Options keep their original position in the step, so an
		// unlabeled button leaves a gap in the numbering.
		var lines []string
		for i, b := range step.Buttons {
			label := strings.TrimSpace(b.Label)
			if label == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%d) %s", i+1, label))
		}
		if len(lines) == 0 {
			return text
		}
		return text + "\n\n" + strings.Join(lines, "\n")
	}
	return ""
}
