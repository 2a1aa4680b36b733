package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/kvantora/comment-bridge/internal/biz/usecase"
)

// TextsConfig contains all user-facing texts loaded from YAML
type TextsConfig struct {
	Replies ReplyTexts  `yaml:"replies"`
	Headers HeaderTexts `yaml:"headers"`
}

// ReplyTexts are the bot's answers in private chats
type ReplyTexts struct {
	Intro            string `yaml:"intro"`
	ChannelIntro     string `yaml:"channel_intro"`
	CommentPrompt    string `yaml:"comment_prompt"`
	InvalidLink      string `yaml:"invalid_link"`
	Cancelled        string `yaml:"cancelled"`
	SelectPostFirst  string `yaml:"select_post_first"`
	EmptyComment     string `yaml:"empty_comment"`
	RateLimited      string `yaml:"rate_limited"`
	CommentSent      string `yaml:"comment_sent"`
	ReplySent        string `yaml:"reply_sent"`
	UnknownRecipient string `yaml:"unknown_recipient"`
	DeliveryFailed   string `yaml:"delivery_failed"`
	CommentButton    string `yaml:"comment_button"`
}

// HeaderTexts are the building blocks of relayed message headers
type HeaderTexts struct {
	NewCommentTitle   string `yaml:"new_comment_title"`
	UserReplyTitle    string `yaml:"user_reply_title"`
	AdminMessageTitle string `yaml:"admin_message_title"`
	UserLabel         string `yaml:"user_label"`
	PostLabel         string `yaml:"post_label"`
	AdminHint         string `yaml:"admin_hint"`
	UserHint          string `yaml:"user_hint"`
}

// LoadTextsConfig loads texts from a YAML file. With an empty path the usual
// locations are tried and built-in defaults are used when none exists.
func LoadTextsConfig(configPath string) (*TextsConfig, error) {
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read texts config: %w", err)
		}
		return parseTexts(data, configPath)
	}

	paths := []string{
		"configs/texts.yaml",
		"/etc/comment-bridge/texts.yaml",
	}
	if execPath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "texts.yaml"))
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			return parseTexts(data, p)
		}
	}

	log.Info().Msg("no texts.yaml found, using defaults")
	return DefaultTextsConfig(), nil
}

func parseTexts(data []byte, path string) (*TextsConfig, error) {
	var config TextsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	config.fillDefaults()

	log.Info().Str("path", path).Msg("loaded texts")
	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *TextsConfig) fillDefaults() {
	d := DefaultTextsConfig()

	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}

	fill(&c.Replies.Intro, d.Replies.Intro)
	fill(&c.Replies.ChannelIntro, d.Replies.ChannelIntro)
	fill(&c.Replies.CommentPrompt, d.Replies.CommentPrompt)
	fill(&c.Replies.InvalidLink, d.Replies.InvalidLink)
	fill(&c.Replies.Cancelled, d.Replies.Cancelled)
	fill(&c.Replies.SelectPostFirst, d.Replies.SelectPostFirst)
	fill(&c.Replies.EmptyComment, d.Replies.EmptyComment)
	fill(&c.Replies.RateLimited, d.Replies.RateLimited)
	fill(&c.Replies.CommentSent, d.Replies.CommentSent)
	fill(&c.Replies.ReplySent, d.Replies.ReplySent)
	fill(&c.Replies.UnknownRecipient, d.Replies.UnknownRecipient)
	fill(&c.Replies.DeliveryFailed, d.Replies.DeliveryFailed)
	fill(&c.Replies.CommentButton, d.Replies.CommentButton)

	fill(&c.Headers.NewCommentTitle, d.Headers.NewCommentTitle)
	fill(&c.Headers.UserReplyTitle, d.Headers.UserReplyTitle)
	fill(&c.Headers.AdminMessageTitle, d.Headers.AdminMessageTitle)
	fill(&c.Headers.UserLabel, d.Headers.UserLabel)
	fill(&c.Headers.PostLabel, d.Headers.PostLabel)
	fill(&c.Headers.AdminHint, d.Headers.AdminHint)
	fill(&c.Headers.UserHint, d.Headers.UserHint)
}

// ToTexts converts to the router's texts
func (c *TextsConfig) ToTexts() usecase.Texts {
	return usecase.Texts{
		Intro:            c.Replies.Intro,
		ChannelIntro:     c.Replies.ChannelIntro,
		CommentPrompt:    c.Replies.CommentPrompt,
		InvalidLink:      c.Replies.InvalidLink,
		Cancelled:        c.Replies.Cancelled,
		SelectPostFirst:  c.Replies.SelectPostFirst,
		EmptyComment:     c.Replies.EmptyComment,
		RateLimited:      c.Replies.RateLimited,
		CommentSent:      c.Replies.CommentSent,
		ReplySent:        c.Replies.ReplySent,
		UnknownRecipient: c.Replies.UnknownRecipient,
		DeliveryFailed:   c.Replies.DeliveryFailed,
		CommentButton:    c.Replies.CommentButton,

		NewCommentTitle:   c.Headers.NewCommentTitle,
		UserReplyTitle:    c.Headers.UserReplyTitle,
		AdminMessageTitle: c.Headers.AdminMessageTitle,
		UserLabel:         c.Headers.UserLabel,
		PostLabel:         c.Headers.PostLabel,
		AdminHint:         c.Headers.AdminHint,
		UserHint:          c.Headers.UserHint,
	}
}

// DefaultTextsConfig returns the built-in texts
func DefaultTextsConfig() *TextsConfig {
	t := usecase.DefaultTexts()
	return &TextsConfig{
		Replies: ReplyTexts{
			Intro:            t.Intro,
			ChannelIntro:     t.ChannelIntro,
			CommentPrompt:    t.CommentPrompt,
			InvalidLink:      t.InvalidLink,
			Cancelled:        t.Cancelled,
			SelectPostFirst:  t.SelectPostFirst,
			EmptyComment:     t.EmptyComment,
			RateLimited:      t.RateLimited,
			CommentSent:      t.CommentSent,
			ReplySent:        t.ReplySent,
			UnknownRecipient: t.UnknownRecipient,
			DeliveryFailed:   t.DeliveryFailed,
			CommentButton:    t.CommentButton,
		},
		Headers: HeaderTexts{
			NewCommentTitle:   t.NewCommentTitle,
			UserReplyTitle:    t.UserReplyTitle,
			AdminMessageTitle: t.AdminMessageTitle,
			UserLabel:         t.UserLabel,
			PostLabel:         t.PostLabel,
			AdminHint:         t.AdminHint,
			UserHint:          t.UserHint,
		},
	}
}
