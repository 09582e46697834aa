package repository

import (
	"time"

	"skechum/internal/model"
)

func farFuture() time.Time {
	return time.Now().Add(time.Hour)
}

func containsPayment(payments []model.Payment, providerID string) bool {
	for _, p := range payments {
		if p.ProviderPaymentID == providerID {
			return true
		}
	}
	return false
}
