package causeway

import "math"

// RiskScore summarizes the weighted likelihood of a cause set
type RiskScore struct {
	Score       float64 `json:"score"`
	Level       string  `json:"level"`
	TotalCauses int     `json:"total_causes"`
}

var impactWeights = map[string]float64{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

const maxImpactWeight = 4

// CalculateRiskScore returns Σ(weight×likelihood×confidence) normalized by the
// maximum attainable total. Unknown impact levels weigh as medium.
func CalculateRiskScore(causes []Cause) RiskScore {
	if len(causes) == 0 {
		return RiskScore{Score: 0, Level: "low"}
	}

	var total float64
	for _, c := range causes {
		w, ok := impactWeights[c.ImpactLevel]
		if !ok {
			w = impactWeights["medium"]
		}
		total += w * clamp01(c.Likelihood) * clamp01(c.Confidence)
	}

	score := total / float64(len(causes)*maxImpactWeight)
	score = math.Round(score*1000) / 1000

	return RiskScore{Score: score, Level: riskLevel(score), TotalCauses: len(causes)}
}

func riskLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
