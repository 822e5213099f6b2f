package domain

// Stage identifies one step of the question pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageNone      Stage = ""
	StageValidate  Stage = "validate"
	StageTranslate Stage = "translate"
	StageEmbed     Stage = "embed"
	StageSearch    Stage = "search"
	StageAnswer    Stage = "answer"
)

// Stages lists the external stages in the order they run.
var Stages = []Stage{StageTranslate, StageEmbed, StageSearch, StageAnswer}

func (s Stage) String() string {
	if s == StageNone {
		return "none"
	}
	return string(s)
}
