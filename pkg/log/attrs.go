package log

import "log/slog"

func AccountID[T ~string](id T) slog.Attr {
	return slog.String("account_id", string(id))
}

func CampaignID[T ~string](id T) slog.Attr {
	return slog.String("campaign_id", string(id))
}

func ContactID[T ~string](id T) slog.Attr {
	return slog.String("contact_id", string(id))
}

func EnrollmentID[T ~string](id T) slog.Attr {
	return slog.String("enrollment_id", string(id))
}

func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

func Kind[T ~string](kind T) slog.Attr {
	return slog.String("kind", string(kind))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Step(step int) slog.Attr {
	return slog.Int("step", step)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
