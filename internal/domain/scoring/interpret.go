package scoring

import (
	"fmt"
	"strings"

	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scales"
)

// template is an interpretation text pair with {{placeholder}} markers.
type template struct {
	Interpretation  string
	Recommendations string
}

// Templates are keyed by classification label. Unknown labels fall back to
// the "default" entry.
var interpretationTemplates = map[string]template{
	"minimal": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) indica sintomatología mínima.",
		Recommendations: "No se requiere intervención específica. Reevaluar si aparecen síntomas nuevos.",
	},
	"mild": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) indica sintomatología leve.",
		Recommendations: "Vigilancia activa. Repetir {{scale}} en la próxima consulta.",
	},
	"moderate": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) indica sintomatología moderada.",
		Recommendations: "Considerar plan de tratamiento y seguimiento estructurado.",
	},
	"moderately_severe": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) indica sintomatología moderadamente severa.",
		Recommendations: "Tratamiento activo con farmacoterapia y/o psicoterapia.",
	},
	"severe": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) indica sintomatología severa.",
		Recommendations: "Iniciar tratamiento inmediato y valorar riesgo. Seguimiento estrecho.",
	},
	"low_risk": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) se encuentra en rango de bajo riesgo.",
		Recommendations: "Continuar seguimiento habitual.",
	},
	"possible_depression": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) sugiere posible depresión.",
		Recommendations: "Realizar evaluación clínica complementaria.",
	},
	"probable_depression": {
		Interpretation:  "La puntuación de {{scale}} ({{raw}}) sugiere depresión probable.",
		Recommendations: "Derivar a evaluación diagnóstica y valorar inicio de tratamiento.",
	},
	"positive_screen": {
		Interpretation:  "El patrón de respuestas de {{scale}} constituye un tamizaje positivo.",
		Recommendations: "El tamizaje no es diagnóstico: confirmar con entrevista clínica estructurada.",
	},
	"negative_screen": {
		Interpretation:  "El patrón de respuestas de {{scale}} constituye un tamizaje negativo.",
		Recommendations: "No se requieren acciones adicionales por este instrumento.",
	},
	"normal": {
		Interpretation:  "La dimensión {{subscale}} de {{scale}} se encuentra en rango normal.",
		Recommendations: "Sin acciones específicas para esta dimensión.",
	},
	"borderline": {
		Interpretation:  "La dimensión {{subscale}} de {{scale}} se encuentra en rango limítrofe.",
		Recommendations: "Reevaluar esta dimensión en el siguiente control.",
	},
	"abnormal": {
		Interpretation:  "La dimensión {{subscale}} de {{scale}} se encuentra en rango clínico.",
		Recommendations: "Explorar esta dimensión en entrevista y considerar intervención dirigida.",
	},
	"default": {
		Interpretation:  "Resultado de {{scale}} ({{subscale}}): {{classification}}.",
		Recommendations: "Interpretar según juicio clínico.",
	},
}

func interpret(def *scales.ScaleDefinition, res *Result) (string, string) {
	tpl, ok := interpretationTemplates[res.Classification]
	if !ok {
		if res.Classification == "" {
			return "", ""
		}
		tpl = interpretationTemplates["default"]
	}
	vars := map[string]string{
		"scale":          def.Abbreviation,
		"subscale":       res.Subscale,
		"classification": res.Classification,
	}
	if res.RawScore != nil {
		vars["raw"] = trimFloat(*res.RawScore)
	}
	if res.Percentile != nil {
		vars["percentile"] = fmt.Sprintf("%d", *res.Percentile)
	}
	return render(tpl.Interpretation, vars), render(tpl.Recommendations, vars)
}

func render(text string, vars map[string]string) string {
	for key, value := range vars {
		text = strings.ReplaceAll(text, "{{"+key+"}}", value)
	}
	return text
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
