package main

import (
	"medvive-settlement/pkg/config"
	"medvive-settlement/services/approval"
	"medvive-settlement/services/consultation"
	"medvive-settlement/services/messaging"
	"medvive-settlement/services/notification"
	"medvive-settlement/services/scheduler"
	"medvive-settlement/services/settlement"
	"medvive-settlement/services/wallet"
	"medvive-settlement/services/withdrawal"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	err := db.AutoMigrate(
		&consultation.Transaction{},
		&consultation.Consultation{},
		&settlement.Payout{},
		&settlement.ProviderFee{},
		&wallet.Account{},
		&wallet.JournalEntry{},
		&approval.Token{},
		&withdrawal.Withdrawal{},
		&scheduler.Job{},
		&messaging.Chat{},
		&messaging.ChatReceipt{},
		&notification.Contact{},
	)
	if err != nil {
		zap.L().Error("[DB] auto migration failed", zap.Error(err))
		return err
	}
	zap.L().Info("[DB] schema migrated")
	return nil
}
