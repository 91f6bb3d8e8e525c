package scales

import "fmt"

// BuiltinScales returns the instrument definitions shipped with the server.
// They are seeded at startup when the catalog does not contain them yet.
func BuiltinScales() []*ScaleDefinition {
	return []*ScaleDefinition{
		phq9(), gad7(), epds(), whodas12(), mdq(), sdq(),
	}
}

func likertItems(stems []string, max float64) []ScaleItem {
	items := make([]ScaleItem, len(stems))
	for i, text := range stems {
		items[i] = ScaleItem{Number: i + 1, Text: text, MaxValue: max}
	}
	return items
}

func phq9() *ScaleDefinition {
	return &ScaleDefinition{
		Abbreviation:       "PHQ-9",
		Name:               "Cuestionario de Salud del Paciente-9",
		Category:           "depression",
		Language:           "es",
		AdministrationMode: "self_administered",
		TargetAgeMin:       18,
		Strategy:           StrategySum,
		Items: likertItems([]string{
			"Poco interés o placer en hacer las cosas",
			"Sentirse desanimado, deprimido o sin esperanza",
			"Problemas para dormir o dormir demasiado",
			"Sentirse cansado o con poca energía",
			"Poco apetito o comer en exceso",
			"Sentirse mal consigo mismo",
			"Dificultad para concentrarse",
			"Moverse o hablar tan lento que otros lo notan, o lo contrario",
			"Pensamientos de que estaría mejor muerto o de hacerse daño",
		}, 3),
		Cutoffs: []CutoffBand{
			{Label: "minimal", Threshold: 0},
			{Label: "mild", Threshold: 5},
			{Label: "moderate", Threshold: 10},
			{Label: "moderately_severe", Threshold: 15},
			{Label: "severe", Threshold: 20},
		},
	}
}

func gad7() *ScaleDefinition {
	return &ScaleDefinition{
		Abbreviation:       "GAD-7",
		Name:               "Escala de Ansiedad Generalizada-7",
		Category:           "anxiety",
		Language:           "es",
		AdministrationMode: "self_administered",
		TargetAgeMin:       18,
		Strategy:           StrategySum,
		Items: likertItems([]string{
			"Sentirse nervioso, ansioso o con los nervios de punta",
			"No poder dejar de preocuparse o controlar la preocupación",
			"Preocuparse demasiado por diferentes cosas",
			"Dificultad para relajarse",
			"Estar tan inquieto que es difícil permanecer sentado",
			"Molestarse o irritarse fácilmente",
			"Sentir miedo como si algo terrible fuera a pasar",
		}, 3),
		Cutoffs: []CutoffBand{
			{Label: "minimal", Threshold: 0},
			{Label: "mild", Threshold: 5},
			{Label: "moderate", Threshold: 10},
			{Label: "severe", Threshold: 15},
		},
	}
}

func epds() *ScaleDefinition {
	stems := []string{
		"He podido reír y ver el lado divertido de las cosas",
		"He mirado el futuro con placer",
		"Me he culpado sin necesidad cuando las cosas salían mal",
		"He estado ansiosa o preocupada sin motivo",
		"He sentido miedo o pánico sin motivo alguno",
		"Las cosas me han estado abrumando",
		"Me he sentido tan infeliz que he tenido dificultad para dormir",
		"Me he sentido triste o desgraciada",
		"He estado tan infeliz que he estado llorando",
		"He pensado en hacerme daño a mí misma",
	}
	items := likertItems(stems, 3)
	// Items 3 and 5 through 10 are worded positively and score in reverse.
	for _, n := range []int{3, 5, 6, 7, 8, 9, 10} {
		items[n-1].ReverseScored = true
	}
	return &ScaleDefinition{
		Abbreviation:       "EPDS",
		Name:               "Escala de Depresión Posnatal de Edimburgo",
		Category:           "perinatal",
		Language:           "es",
		AdministrationMode: "self_administered",
		TargetAgeMin:       15,
		Strategy:           StrategySum,
		Items:              items,
		Cutoffs: []CutoffBand{
			{Label: "low_risk", Threshold: 0},
			{Label: "possible_depression", Threshold: 10},
			{Label: "probable_depression", Threshold: 13},
		},
	}
}

func whodas12() *ScaleDefinition {
	alpha := 0.86
	stems := make([]string, 12)
	domains := []string{
		"cognición", "cognición",
		"movilidad", "movilidad",
		"autocuidado", "autocuidado",
		"relaciones", "relaciones",
		"actividades", "actividades",
		"participación", "participación",
	}
	for i := range stems {
		stems[i] = fmt.Sprintf("Dificultad en %s (ítem %d)", domains[i], i+1)
	}
	return &ScaleDefinition{
		Abbreviation:       "WHODAS-12",
		Name:               "Cuestionario de Evaluación de Discapacidad de la OMS, versión de 12 ítems",
		Category:           "functioning",
		Language:           "es",
		AdministrationMode: "both",
		TargetAgeMin:       18,
		Strategy:           StrategyMean,
		Items:              likertItems(stems, 4),
		Subscales: []Subscale{
			{
				Name:        "total",
				ItemNumbers: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
				Reliability: &alpha,
				Norms: []NormRow{
					{AgeMin: 18, AgeMax: 44, Mean: 0.8, SD: 0.7},
					{AgeMin: 45, AgeMax: 64, Mean: 1.1, SD: 0.8},
					{AgeMin: 65, AgeMax: 120, Mean: 1.5, SD: 0.9},
				},
			},
		},
		Cutoffs: []CutoffBand{
			{Label: "none", Threshold: 0},
			{Label: "mild", Threshold: 45},
			{Label: "moderate", Threshold: 55},
			{Label: "severe", Threshold: 65},
		},
	}
}

func mdq() *ScaleDefinition {
	stems := make([]string, 15)
	for i := 0; i < 13; i++ {
		stems[i] = fmt.Sprintf("Síntoma de activación %d (sí/no)", i+1)
	}
	stems[13] = "¿Varios de estos síntomas ocurrieron durante el mismo período?"
	stems[14] = "¿Qué tanto problema le causaron estos síntomas? (0 ninguno - 3 serio)"
	items := likertItems(stems, 1)
	items[14].MaxValue = 3
	return &ScaleDefinition{
		Abbreviation:       "MDQ",
		Name:               "Cuestionario de Trastornos del Ánimo",
		Category:           "bipolar",
		Language:           "es",
		AdministrationMode: "self_administered",
		TargetAgeMin:       18,
		Strategy:           StrategyCategorical,
		Items:              items,
		Categories: &CategoricalSpec{
			// Positive screen: 7+ symptom endorsements, co-occurrence,
			// and at least moderate impairment.
			Rules: []CategoryRule{
				{
					Bucket:         "positive_screen",
					MinPerItem:     map[int]float64{14: 1, 15: 2},
					MinPositive:    7,
					CountThreshold: 1,
					CountItems:     []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
				},
			},
			DefaultBucket: "negative_screen",
		},
	}
}

func sdq() *ScaleDefinition {
	stems := make([]string, 25)
	for i := range stems {
		stems[i] = fmt.Sprintf("Conducta observada %d", i+1)
	}
	items := likertItems(stems, 2)
	for _, n := range []int{7, 11, 14, 21, 25} {
		items[n-1].ReverseScored = true
	}
	difficulty := []CutoffBand{
		{Label: "normal", Threshold: 0},
		{Label: "borderline", Threshold: 6},
		{Label: "abnormal", Threshold: 7},
	}
	return &ScaleDefinition{
		Abbreviation:       "SDQ",
		Name:               "Cuestionario de Capacidades y Dificultades",
		Category:           "child_behavior",
		Language:           "es",
		AdministrationMode: "clinician_administered",
		TargetAgeMin:       4,
		TargetAgeMax:       17,
		Strategy:           StrategyProfile,
		Items:              items,
		Subscales: []Subscale{
			{Name: "emotional", ItemNumbers: []int{3, 8, 13, 16, 24}, Cutoffs: []CutoffBand{
				{Label: "normal", Threshold: 0}, {Label: "borderline", Threshold: 4}, {Label: "abnormal", Threshold: 5},
			}},
			{Name: "conduct", ItemNumbers: []int{5, 7, 12, 18, 22}, Cutoffs: difficulty},
			{Name: "hyperactivity", ItemNumbers: []int{2, 10, 15, 21, 25}, Cutoffs: difficulty},
			{Name: "peer_problems", ItemNumbers: []int{6, 11, 14, 19, 23}, Cutoffs: []CutoffBand{
				{Label: "normal", Threshold: 0}, {Label: "borderline", Threshold: 4}, {Label: "abnormal", Threshold: 6},
			}},
			{Name: "prosocial", ItemNumbers: []int{1, 4, 9, 17, 20}, Cutoffs: []CutoffBand{
				{Label: "abnormal", Threshold: 0}, {Label: "borderline", Threshold: 5}, {Label: "normal", Threshold: 6},
			}},
		},
	}
}
