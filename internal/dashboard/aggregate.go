package dashboard

import (
	"math"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

const (
	// weekDays は週次平均の分母。欠損日も含めた固定値。
	weekDays = 7
	// weekSleepMinutes は睡眠時間（時間）換算の分母。
	weekSleepMinutes = weekDays * 60
)

// AggregateWeekly は直近7日間の時系列から平均値を算出する。
// 欠損日は0として扱い、常に7日で割る。データが欠けると平均は実際より低くなる。
// 歩数とカロリーは整数に、睡眠時間は小数第1位に丸める。
func AggregateWeekly(steps, calories []model.ActivitySample, sleep []model.SleepSession) model.WeeklyAverages {
	var sleepMinutes int
	for _, s := range sleep {
		sleepMinutes += s.MinutesAsleep
	}

	return model.WeeklyAverages{
		Steps:      math.Round(sum(steps) / weekDays),
		Calories:   math.Round(sum(calories) / weekDays),
		SleepHours: math.Round(float64(sleepMinutes)/weekSleepMinutes*10) / 10,
	}
}

func sum(samples []model.ActivitySample) float64 {
	var total float64
	for _, s := range samples {
		total += s.Value
	}
	return total
}

// Stats は時系列の統計値。
type Stats struct {
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Total float64 `json:"total"`
}

// CalculateStats は時系列の平均・最小・最大・合計を返す。
// 平均と合計は整数に丸める。空の場合は全て0。
func CalculateStats(samples []model.ActivitySample) Stats {
	if len(samples) == 0 {
		return Stats{}
	}

	st := Stats{Min: samples[0].Value, Max: samples[0].Value}
	for _, s := range samples {
		st.Total += s.Value
		st.Min = math.Min(st.Min, s.Value)
		st.Max = math.Max(st.Max, s.Value)
	}
	st.Avg = math.Round(st.Total / float64(len(samples)))
	st.Total = math.Round(st.Total)
	return st
}

// GoalProgress は目標に対する達成率（%）を返す。100で頭打ち。
// 目標が0以下の場合は0。
func GoalProgress(current, goal float64) int {
	if goal <= 0 {
		return 0
	}
	return int(math.Min(math.Round(current/goal*100), 100))
}

// バッテリー残量の区分
const (
	BatteryHigh   = "high"
	BatteryMedium = "medium"
	BatteryLow    = "low"
)

// BatteryStatus はバッテリー残量（%）を区分に変換する。
func BatteryStatus(level int) string {
	switch {
	case level >= 80:
		return BatteryHigh
	case level >= 30:
		return BatteryMedium
	default:
		return BatteryLow
	}
}

// SleepEfficiencyCategory は睡眠効率の評価を返す。
func SleepEfficiencyCategory(efficiency int) string {
	switch {
	case efficiency <= 0:
		return "データなし"
	case efficiency >= 90:
		return "非常に良い"
	case efficiency >= 85:
		return "良い"
	case efficiency >= 80:
		return "まあまあ"
	default:
		return "改善が必要"
	}
}
