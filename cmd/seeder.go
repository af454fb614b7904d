package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	rulemodel "github.com/expenseflow/expenseflow/internal/core/datamodel/approvalrule"
	companymodel "github.com/expenseflow/expenseflow/internal/core/datamodel/company"
	usermodel "github.com/expenseflow/expenseflow/internal/core/datamodel/user"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with a demo company, users and an approval rule for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{"expenses", "approval_rules", "users", "companies"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		company := companymodel.Company{Name: "Acme Corp", Currency: "USD"}
		var existing companymodel.Company
		if err := db.Where("name = ?", company.Name).First(&existing).Error; err == nil {
			fmt.Println("demo company already exists, skipping seed")
			return
		}
		if err := db.Create(&company).Error; err != nil {
			log.Fatalf("failed to insert company: %v", err)
		}
		fmt.Println("Seeded company:", company.Name)

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		admin := usermodel.User{
			Email:        "admin@acme.test",
			Name:         "Alice Admin",
			PasswordHash: string(hash),
			Role:         "admin",
			CompanyID:    company.ID,
		}
		if err := db.Create(&admin).Error; err != nil {
			log.Fatalf("failed to insert admin user: %v", err)
		}

		manager := usermodel.User{
			Email:        "manager@acme.test",
			Name:         "Max Manager",
			PasswordHash: string(hash),
			Role:         "manager",
			CompanyID:    company.ID,
		}
		if err := db.Create(&manager).Error; err != nil {
			log.Fatalf("failed to insert manager user: %v", err)
		}

		employee := usermodel.User{
			Email:        "employee@acme.test",
			Name:         "Eve Employee",
			PasswordHash: string(hash),
			Role:         "employee",
			CompanyID:    company.ID,
			ManagerID:    &manager.ID,
		}
		if err := db.Create(&employee).Error; err != nil {
			log.Fatalf("failed to insert employee user: %v", err)
		}
		fmt.Println("Seeded users:", admin.Email, manager.Email, employee.Email)

		sequence, _ := json.Marshal([]map[string]any{
			{"step": 1, "role": "admin"},
		})
		rule := rulemodel.Rule{
			CompanyID:               company.ID,
			IsManagerApproverNeeded: true,
			Sequence:                sequence,
		}
		if err := db.Create(&rule).Error; err != nil {
			log.Fatalf("failed to insert approval rule: %v", err)
		}
		fmt.Println("Seeded approval rule: manager gate + admin step")

		fmt.Println("Seed complete. All passwords are:", password)
	},
}
