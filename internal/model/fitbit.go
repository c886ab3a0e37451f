package model

import (
	"fmt"
	"time"
)

// ActivityType はFitbitのアクティビティ種別。
type ActivityType string

const (
	ActivitySteps                ActivityType = "steps"
	ActivityCalories             ActivityType = "calories"
	ActivityDistance             ActivityType = "distance"
	ActivityFloors               ActivityType = "floors"
	ActivityElevation            ActivityType = "elevation"
	ActivityMinutesSedentary     ActivityType = "minutesSedentary"
	ActivityMinutesLightlyActive ActivityType = "minutesLightlyActive"
	ActivityMinutesFairlyActive  ActivityType = "minutesFairlyActive"
	ActivityMinutesVeryActive    ActivityType = "minutesVeryActive"
)

var activityTypes = map[ActivityType]struct{}{
	ActivitySteps:                {},
	ActivityCalories:             {},
	ActivityDistance:             {},
	ActivityFloors:               {},
	ActivityElevation:            {},
	ActivityMinutesSedentary:     {},
	ActivityMinutesLightlyActive: {},
	ActivityMinutesFairlyActive:  {},
	ActivityMinutesVeryActive:    {},
}

// ParseActivityType は文字列をActivityTypeに変換する。
// 未定義の種別の場合はInvalidParameterエラーを返す。
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(s)
	if _, ok := activityTypes[t]; !ok {
		return "", NewError(KindInvalidParameter, fmt.Sprintf("activity type %q", s), nil)
	}
	return t, nil
}

// Period はFitbitの時系列期間。
type Period string

const (
	PeriodToday  Period = "today"
	Period7Days  Period = "7d"
	Period30Days Period = "30d"
	Period3Month Period = "3m"
	Period6Month Period = "6m"
	Period1Year  Period = "1y"
)

var periodDays = map[Period]int{
	PeriodToday:  1,
	Period7Days:  7,
	Period30Days: 30,
	Period3Month: 90,
	Period6Month: 180,
	Period1Year:  365,
}

// ParsePeriod は文字列をPeriodに変換する。1年を超える期間は受け付けない。
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if _, ok := periodDays[p]; !ok {
		return "", NewError(KindInvalidParameter, fmt.Sprintf("period %q", s), nil)
	}
	return p, nil
}

// Days は期間に含まれる日数を返す。
func (p Period) Days() int {
	return periodDays[p]
}

// DateLayout はFitbit APIの日付書式。
const DateLayout = "2006-01-02"

// ValidateDate は "today" または YYYY-MM-DD 形式の日付を検証する。
func ValidateDate(s string) error {
	if s == "today" {
		return nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return NewError(KindInvalidParameter, fmt.Sprintf("date %q", s), err)
	}
	return nil
}

// UserProfile はFitbitユーザープロフィール。
type UserProfile struct {
	DisplayName string  `json:"displayName"`
	FullName    string  `json:"fullName"`
	Gender      string  `json:"gender"`
	Age         int     `json:"age"`
	Height      float64 `json:"height"`
	Weight      float64 `json:"weight"`
	Timezone    string  `json:"timezone"`
	MemberSince string  `json:"memberSince"`
	Avatar      string  `json:"avatar"`
}

// ActivitySample は1日分のアクティビティ値。
type ActivitySample struct {
	Date  string  `json:"dateTime"`
	Value float64 `json:"value"`
}

// MetricValue はダッシュボードのカード1枚分の値。
type MetricValue struct {
	Value float64 `json:"value"`
}

// TodayActivity は本日のアクティビティ概要。
type TodayActivity struct {
	Date          string      `json:"date"`
	Steps         MetricValue `json:"steps"`
	Calories      MetricValue `json:"calories"`
	Distance      MetricValue `json:"distance"`
	ActiveMinutes MetricValue `json:"activeMinutes"`
}

// HeartRateZone は心拍ゾーン。
type HeartRateZone struct {
	Name        string  `json:"name"`
	Min         int     `json:"min"`
	Max         int     `json:"max"`
	Minutes     int     `json:"minutes"`
	CaloriesOut float64 `json:"caloriesOut"`
}

// HeartRateSample は1日分の心拍データ。
type HeartRateSample struct {
	Date             string          `json:"date"`
	RestingHeartRate int             `json:"restingHeartRate"`
	Zones            []HeartRateZone `json:"zones"`
	CustomZones      []HeartRateZone `json:"customZones"`
}

// SleepSession は1晩分の主睡眠。
type SleepSession struct {
	Date                string `json:"date"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
	Duration            int64  `json:"duration"` // ミリ秒
	MinutesAsleep       int    `json:"minutesAsleep"`
	MinutesAwake        int    `json:"minutesAwake"`
	MinutesToFallAsleep int    `json:"minutesToFallAsleep"`
	TimeInBed           int    `json:"timeInBed"`
	Efficiency          int    `json:"efficiency"`
}

// Device はユーザーに紐づくFitbitデバイス。
type Device struct {
	ID            string `json:"id"`
	DeviceVersion string `json:"deviceVersion"`
	Type          string `json:"type"`
	BatteryLevel  int    `json:"batteryLevel"`
	Battery       string `json:"battery"`
	LastSyncTime  string `json:"lastSyncTime"`
}

// WeeklyAverages は直近7日間の平均値。
type WeeklyAverages struct {
	Steps      float64 `json:"steps"`
	Calories   float64 `json:"calories"`
	SleepHours float64 `json:"sleepHours"`
}

// WeeklyDetails は平均値の元になった時系列。
type WeeklyDetails struct {
	Steps    []ActivitySample `json:"steps"`
	Calories []ActivitySample `json:"calories"`
	Sleep    []SleepSession   `json:"sleep"`
}

// WeeklySummary は週次サマリー。
type WeeklySummary struct {
	Period   string         `json:"period"`
	Averages WeeklyAverages `json:"averages"`
	Details  WeeklyDetails  `json:"details"`
}
