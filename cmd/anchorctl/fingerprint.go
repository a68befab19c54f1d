package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/bigkaa/anchorvault/internal/fingerprint"
)

// fingerprintOutput — машиночитаемый вывод, совместимый с телом POST /api/v1/anchors.
type fingerprintOutput struct {
	Fingerprint string `json:"fingerprint"`
	DisplayName string `json:"display_name"`
	SizeBytes   int64  `json:"size_bytes"`
	MediaType   string `json:"media_type"`
}

func runFingerprint(args []string, out io.Writer) error {
	fs := newFlagSet("fingerprint", out)
	asJSON := fs.Bool("json", false, "вывести тело запроса регистрации в JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("ожидается ровно один файл")
	}

	fp, err := fingerprint.HashFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(fingerprintOutput{
			Fingerprint: fp.Digest,
			DisplayName: fp.Name,
			SizeBytes:   fp.SizeBytes,
			MediaType:   fp.MediaType,
		})
	}

	bold := color.New(color.Bold)
	bold.Fprintln(out, fp.Digest)
	fmt.Fprintf(out, "  файл:   %s\n", fp.Name)
	fmt.Fprintf(out, "  размер: %s (%s байт)\n", humanize.IBytes(uint64(fp.SizeBytes)), humanize.Comma(fp.SizeBytes))
	fmt.Fprintf(out, "  тип:    %s\n", fp.MediaType)
	return nil
}
