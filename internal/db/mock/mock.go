package mock

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	applog "labstock/internal/log"
	"labstock/models"
)

// New returns an in-memory sqlite database seeded with representative
// laboratory inventory data. It backs local development and the
// DATABASE_USE_MOCK mode.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	db, err := gorm.Open(sqlite.Open("file:labstock-mock?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.StorageItem{},
		&models.UsageRecord{},
		&models.User{},
		&models.Personnel{},
	); err != nil {
		return nil, err
	}

	if err := seed(ctx, db); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return db, nil
}

func seed(ctx context.Context, db *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	password, err := bcrypt.GenerateFromPassword([]byte("labstock"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:     "admin",
		PasswordHash: string(password),
		Active:       true,
	}
	if err := db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}

	people := []*models.Personnel{
		{Name: "张伟", Active: true},
		{Name: "李娜", Active: true},
		{Name: "Chen Lu", Active: true},
	}
	for _, person := range people {
		if err := db.WithContext(ctx).Create(person).Error; err != nil {
			return err
		}
	}

	acetone := models.StorageItem{
		Category:        "有机溶剂",
		Name:            "丙酮",
		Brand:           "Sigma-Aldrich",
		QuantityText:    "500ml",
		Location:        "A柜-1层",
		CASNumber:       "67-64-1",
		CurrentQuantity: 350,
		Unit:            "ml",
	}

	sodiumChloride := models.StorageItem{
		Category:        "无机盐",
		Name:            "氯化钠",
		Brand:           "国药",
		QuantityText:    "1000g",
		Location:        "B柜-2层",
		CASNumber:       "7647-14-5",
		CurrentQuantity: 95,
		Unit:            "g",
	}

	ethanol := models.StorageItem{
		Category:        "有机溶剂",
		Name:            "无水乙醇",
		Brand:           "Aladdin",
		QuantityText:    "2.5kg",
		Location:        "A柜-1层",
		CASNumber:       "64-17-5",
		CurrentQuantity: 2.5,
		Unit:            "kg",
	}

	items := []*models.StorageItem{&acetone, &sodiumChloride, &ethanol}
	for _, item := range items {
		if err := db.WithContext(ctx).Create(item).Error; err != nil {
			return err
		}
	}

	records := []models.UsageRecord{
		{
			StorageItemID: &acetone.ID,
			Category:      acetone.Category,
			ProductName:   acetone.Name,
			QuantityText:  acetone.QuantityText,
			Location:      acetone.Location,
			CASNumber:     acetone.CASNumber,
			Personnel:     "张伟",
			UsedOn:        time.Now().UTC().AddDate(0, 0, -3),
			Amount:        150,
			Remaining:     350,
			Unit:          "ml",
			Notes:         "清洗玻璃器皿",
		},
		{
			StorageItemID: &sodiumChloride.ID,
			Category:      sodiumChloride.Category,
			ProductName:   sodiumChloride.Name,
			QuantityText:  sodiumChloride.QuantityText,
			Location:      sodiumChloride.Location,
			CASNumber:     sodiumChloride.CASNumber,
			Personnel:     "李娜",
			UsedOn:        time.Now().UTC().AddDate(0, 0, -1),
			Amount:        905,
			Remaining:     95,
			Unit:          "g",
			Notes:         "配制缓冲液",
		},
	}
	for i := range records {
		if err := db.WithContext(ctx).Create(&records[i]).Error; err != nil {
			return err
		}
	}

	return nil
}
