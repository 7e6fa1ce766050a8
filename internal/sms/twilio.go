package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/config"
)

// TwilioGateway Twilio 短信网关实现
type TwilioGateway struct {
	client *twilio.RestClient
	from   string
	logger *zap.Logger
}

// NewTwilioGateway 创建 TwilioGateway
func NewTwilioGateway(cfg *config.SMSConfig, logger *zap.Logger) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioGateway{client: client, from: cfg.From, logger: logger}
}

func (g *TwilioGateway) Send(_ context.Context, to, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(g.from)
	params.SetBody(body)

	resp, err := g.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio 发送失败: %w", err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	g.logger.Debug("短信已提交 Twilio",
		zap.String("to", to),
		zap.String("sid", sid),
	)
	return nil
}

// NewGateway 按配置选择网关实现
func NewGateway(cfg *config.SMSConfig, logger *zap.Logger) Gateway {
	if cfg.Provider == "twilio" {
		return NewTwilioGateway(cfg, logger)
	}
	return NewLogGateway(logger)
}
