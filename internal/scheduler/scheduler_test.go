package scheduler

import "testing"

func TestAddJobValidatesExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("0 3 * * *", func() {}); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("invalid expression accepted")
	}
	// 6-field (seconds) expressions are not part of the 5-field parser.
	if err := s.AddJob("0 0 3 * * *", func() {}); err == nil {
		t.Error("6-field expression accepted by 5-field parser")
	}
}

func TestAddDailyJobValidatesHour(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddDailyJob(3, func() {}); err != nil {
		t.Errorf("valid hour rejected: %v", err)
	}
	if err := s.AddDailyJob(0, func() {}); err != nil {
		t.Errorf("midnight rejected: %v", err)
	}
	if err := s.AddDailyJob(-1, func() {}); err == nil {
		t.Error("negative hour accepted")
	}
	if err := s.AddDailyJob(24, func() {}); err == nil {
		t.Error("hour 24 accepted")
	}
}

func TestAddIntervalJobValidatesMinutes(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddIntervalJob(10, func() {}); err != nil {
		t.Errorf("valid interval rejected: %v", err)
	}
	if err := s.AddIntervalJob(0, func() {}); err == nil {
		t.Error("zero interval accepted")
	}
	if err := s.AddIntervalJob(60, func() {}); err == nil {
		t.Error("interval over 59 minutes accepted")
	}
}
