package main

import (
	"fmt"

	"classbazz-backend/config"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/util"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	Name      string
	AvatarURL string
	UserID    string
}

// newTokenCommand 在命令行签发令牌，便于调试 websocket 连接
func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "为指定身份签发访问令牌",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Init()

			identity := model.Identity{
				Name:      opts.Name,
				AvatarURL: opts.AvatarURL,
				UserID:    opts.UserID,
			}
			if identity.UserID == "" {
				identity.UserID = uuid.NewString()
			}

			token, err := util.GenerateToken(identity)
			if err != nil {
				return fmt.Errorf("生成令牌失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "昵称 (必填)")
	cmd.Flags().StringVar(&opts.AvatarURL, "avatar-url", "", "头像地址 (必填)")
	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "用户ID，留空时自动生成")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("avatar-url")

	return cmd
}
