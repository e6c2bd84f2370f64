package main

import (
	"log"
	"os"

	"unichat/internal/config"
	"unichat/internal/models"

	"github.com/spf13/viper"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
	cfg := config.Load()

	// 连接数据库
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.Channel{},
		&models.Lead{},
		&models.Conversation{},
		&models.Message{},
		&models.AssistantBinding{},
		&models.AssistantLog{},
		&models.WebhookSubscription{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建索引
	log.Println("Creating additional indexes...")

	// 会话表按租户与最近活跃排序
	db.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_user_last_message ON conversations(user_id, last_message_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_lead ON conversations(lead_id)")

	// 消息表按会话拉取历史
	db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at)")

	// 线索表按渠道身份查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_leads_user_phone ON leads(user_id, phone)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_leads_user_email ON leads(user_id, email)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_leads_user_telegram ON leads(user_id, telegram_id)")

	// 助手日志按时间清理
	db.Exec("CREATE INDEX IF NOT EXISTS idx_assistant_logs_created ON assistant_logs(created_at)")

	log.Println("Additional indexes created successfully!")

	// 插入默认数据
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	// 创建演示网站渠道
	var widget models.Channel
	if err := db.Where("type = ? AND user_id = ?", models.ChannelWebsite, 1).First(&widget).Error; err != nil {
		widget = models.Channel{
			UserID: 1,
			Name:   "演示网站组件",
			Type:   models.ChannelWebsite,
			Status: models.ChannelStatusActive,
			Settings: datatypes.JSONMap{
				"greeting": "您好,有什么可以帮您?",
			},
		}
		db.Create(&widget)
		log.Println("Created demo website channel")
	}

	// 创建演示外部订阅
	var sub models.WebhookSubscription
	if err := db.Where("user_id = ?", 1).First(&sub).Error; err != nil {
		sub = models.WebhookSubscription{
			UserID:   1,
			URL:      "http://localhost:9000/events",
			Events:   "new_message",
			IsActive: false,
		}
		db.Create(&sub)
		log.Println("Created demo webhook subscription (inactive)")
	}
}
