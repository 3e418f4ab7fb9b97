package fallback

import (
	"sort"
	"time"

	"github.com/BaSui01/biaslens/llm"
)

const (
	// healthyBonus 健康提供者的基础分
	healthyBonus = 100.0
	// latencyWeight 响应时间加分上限
	latencyWeight = 50.0
	// latencyThreshold 超过该响应时间不再加分
	latencyThreshold = 10 * time.Second
	// successWeight 成功率加分上限
	successWeight = 50.0
	// recentErrorPenalty 每个近期错误的扣分
	recentErrorPenalty = 10.0
)

// Candidate is one provider considered for an attempt.
type Candidate struct {
	Name         string              `json:"name"`
	Healthy      bool                `json:"healthy"`
	ResponseTime time.Duration       `json:"response_time"`
	Metrics      llm.ProviderMetrics `json:"metrics"`
}

// Score rates a healthy candidate. Unhealthy candidates are not scored and
// Score returns 0 for them.
func Score(c Candidate) float64 {
	if !c.Healthy {
		return 0
	}
	s := healthyBonus
	if c.ResponseTime < latencyThreshold {
		s += latencyWeight * (1 - float64(c.ResponseTime)/float64(latencyThreshold))
	}
	s += successWeight * c.Metrics.SuccessRate
	s -= recentErrorPenalty * float64(c.Metrics.RecentErrorCount)
	return s
}

// Rank returns healthy candidates by descending score, ties in input order,
// followed by unhealthy candidates in input order. The input is not modified.
func Rank(cands []Candidate) []Candidate {
	healthy := make([]Candidate, 0, len(cands))
	var unhealthy []Candidate
	for _, c := range cands {
		if c.Healthy {
			healthy = append(healthy, c)
		} else {
			unhealthy = append(unhealthy, c)
		}
	}
	sort.SliceStable(healthy, func(i, j int) bool {
		return Score(healthy[i]) > Score(healthy[j])
	})
	return append(healthy, unhealthy...)
}

// candidateOrder 按配置顺序排列，首选提供者（若已注册）移到最前
func candidateOrder(order []string, preferred string) ([]string, bool) {
	out := make([]string, 0, len(order))
	hinted := false
	for _, name := range order {
		if name == preferred {
			hinted = true
			continue
		}
		out = append(out, name)
	}
	if hinted {
		out = append([]string{preferred}, out...)
	}
	return out, hinted
}

func names(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Name
	}
	return out
}
