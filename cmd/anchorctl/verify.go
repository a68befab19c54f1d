package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/bigkaa/anchorvault/internal/fingerprint"
)

// verification — публичная проекция якоря из GET /api/v1/verify/{public_id}.
type verification struct {
	Found        bool       `json:"found"`
	PublicID     string     `json:"public_id"`
	Headline     string     `json:"headline"`
	Status       string     `json:"status"`
	Fingerprint  string     `json:"fingerprint"`
	DisplayName  string     `json:"display_name"`
	CreatedAt    *time.Time `json:"created_at"`
	Jurisdiction *string    `json:"jurisdiction"`
	Attestation  *struct {
		ReceiptID  string    `json:"receipt_id"`
		ObservedAt time.Time `json:"observed_at"`
		Ordinal    int64     `json:"ordinal"`
		Network    string    `json:"network"`
	} `json:"attestation"`
	Timeline []struct {
		EventType  string    `json:"event_type"`
		OccurredAt time.Time `json:"occurred_at"`
	} `json:"timeline"`
}

func runVerify(args []string, out io.Writer, client *http.Client) error {
	fs := newFlagSet("verify", out)
	server := fs.String("server", "", "базовый URL AnchorVault (обязателен)")
	digest := fs.String("digest", "", "готовый SHA-256 вместо файла")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *server == "" {
		return errors.New("не указан --server")
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("ожидается public_id и необязательный файл")
	}
	publicID := fs.Arg(0)

	local := strings.ToLower(strings.TrimSpace(*digest))
	if fs.NArg() == 2 {
		fp, err := fingerprint.HashFile(fs.Arg(1))
		if err != nil {
			return err
		}
		local = fp.Digest
	}
	if local != "" && !fingerprint.IsDigest(local) {
		return fmt.Errorf("некорректный отпечаток %q", local)
	}

	v, err := fetchVerification(client, *server, publicID)
	if err != nil {
		return err
	}
	if !v.Found {
		color.New(color.FgYellow).Fprintf(out, "Якорь %s не найден\n", publicID)
		return &exitError{code: exitNotFound, msg: "якорь не найден"}
	}

	printVerification(out, v)

	if local == "" {
		return nil
	}
	if !fingerprint.Equal(v.Fingerprint, local) {
		color.New(color.FgRed, color.Bold).Fprintln(out, "✗ Отпечаток НЕ совпадает с опубликованным")
		return &exitError{code: exitMismatch, msg: "отпечаток не совпадает"}
	}
	color.New(color.FgGreen, color.Bold).Fprintln(out, "✓ Отпечаток совпадает с опубликованным")
	return nil
}

func fetchVerification(client *http.Client, server, publicID string) (*verification, error) {
	endpoint, err := url.JoinPath(server, "/api/v1/verify", url.PathEscape(publicID))
	if err != nil {
		return nil, fmt.Errorf("некорректный адрес сервера: %w", err)
	}

	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("запрос верификации: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("сервер вернул HTTP %d", resp.StatusCode)
	}

	var v verification
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("разбор ответа: %w", err)
	}
	return &v, nil
}

func printVerification(out io.Writer, v *verification) {
	headline := color.New(color.Bold)
	switch v.Headline {
	case "verified":
		headline.Add(color.FgGreen)
	case "revoked":
		headline.Add(color.FgRed)
	default:
		headline.Add(color.FgYellow)
	}
	headline.Fprintf(out, "%s\n", strings.ToUpper(v.Headline))

	fmt.Fprintf(out, "  документ:  %s\n", v.DisplayName)
	fmt.Fprintf(out, "  отпечаток: %s\n", v.Fingerprint)
	if v.CreatedAt != nil {
		fmt.Fprintf(out, "  создан:    %s (%s)\n", v.CreatedAt.UTC().Format(time.RFC3339), humanize.Time(*v.CreatedAt))
	}
	if v.Jurisdiction != nil {
		fmt.Fprintf(out, "  регион:    %s\n", *v.Jurisdiction)
	}
	if a := v.Attestation; a != nil {
		fmt.Fprintf(out, "  реестр:    %s #%s, квитанция %s\n", a.Network, humanize.Comma(a.Ordinal), a.ReceiptID)
	}
	for _, e := range v.Timeline {
		fmt.Fprintf(out, "    %s  %s\n", e.OccurredAt.UTC().Format(time.RFC3339), e.EventType)
	}
}
