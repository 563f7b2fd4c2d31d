package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"classbazz-backend/config"
	"classbazz-backend/internal/repository/interfaces"
	"classbazz-backend/internal/repository/memory"
	"classbazz-backend/internal/repository/mongodb"
	"classbazz-backend/internal/repository/mysql"
	"classbazz-backend/internal/server"
	"classbazz-backend/internal/util"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// openPostRepository 按 DB_DRIVER 连接存储，返回的 Closer 在关闭服务时调用
func openPostRepository(ctx context.Context, cfg config.Config) (interfaces.PostRepository, io.Closer, error) {
	switch cfg.DBDriver {
	case config.DriverMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("连接 MongoDB 失败: %w", err)
		}
		repo := mongodb.NewPostRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("创建索引失败: %w", err)
		}
		util.Logger.Info("MongoDB 连接成功", zap.String("database", cfg.MongoDatabase))

		return repo, server.CloserFunc(func() error {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(disconnectCtx)
		}), nil

	case config.DriverMySQL, config.DriverSQLite:
		dsn := cfg.MySQLDSN()
		if cfg.DBDriver == config.DriverSQLite {
			dsn = cfg.SQLitePath
		}

		db, err := sql.Open(cfg.DBDriver, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("数据库连接测试失败: %w", err)
		}

		if cfg.DBDriver == config.DriverSQLite {
			// SQLite 同一时刻只允许一个写入者
			db.SetMaxOpenConns(1)
		} else {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(25)
			db.SetConnMaxLifetime(5 * time.Minute)
		}

		if err := mysql.EnsureSchema(ctx, db, cfg.DBDriver); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("初始化表结构失败: %w", err)
		}
		util.Logger.Info("数据库连接成功", zap.String("driver", cfg.DBDriver))

		return mysql.NewPostRepository(db), db, nil

	case config.DriverMemory:
		util.Logger.Warn("使用内存存储，重启后数据会丢失")
		return memory.NewPostRepository(), server.CloserFunc(func() error { return nil }), nil

	default:
		return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.DBDriver)
	}
}
