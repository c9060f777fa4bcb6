package main_test

import (
	"testing"

	"github.com/containerd/nerdctl/mod/tigron/expect"
	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/farcloser/agar/pkg/agar"
)

func TestAuditCLI(t *testing.T) {
	testCase := setup()

	testCase.SubTests = []*test.Case{
		{
			Description: "audit without arguments fails",
			Command:     test.Command("audit"),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "audit nonexistent file fails",
			Command:     test.Command("audit", "--no-cache", "/nonexistent/path/file.flac"),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "audit with an unknown format fails",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.Genuine16bit44k(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(auditArgs(data.Labels().Get("file"), "--format", "yaml-ish")...)
			},
			Expected: test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "audit genuine file prints a verdict",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.Genuine16bit44k(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(auditArgs(data.Labels().Get("file"))...)
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains("verdict"),
						expectContains("properties"),
						expectVerdict("CLEAN", "SUSPICIOUS", "CORRUPT", "REVIEW_REQUIRED"),
					),
				}
			},
		},
		{
			Description: "segmented audit in json with every field",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.Genuine24bit96k(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(
					auditArgs(data.Labels().Get("file"), "--segmented", "--format", "json", "--debug")...,
				)
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains(`"loading_mode"`),
						expectContains(`"segmented"`),
						expectContains(`"arbitration_status"`),
					),
				}
			},
		},
		{
			Description: "hard clipping is reported",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.ClippedHard(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(auditArgs(data.Labels().Get("file"), "--format", "json", "--debug")...)
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output:   expectContains(`"clipping_event_count"`),
				}
			},
		},
		{
			Description: "disabled arbiter marks gray-zone files or stays local",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.LossyTranscodeMP3128k(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(auditArgs(data.Labels().Get("file"), "--no-cache")...)
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output:   expectVerdict("LOCAL_ONLY", "AI_FAILED"),
				}
			},
		},
	}

	testCase.Run(t)
}

func TestCacheCLI(t *testing.T) {
	testCase := setup()

	testCase.SubTests = []*test.Case{
		{
			Description: "cache show requires a hash",
			Command:     test.Command("cache", "show"),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "audited file is listed",
			Setup: func(data test.Data, helpers test.Helpers) {
				file := agar.Genuine16bit44k(data, helpers)
				data.Labels().Set("file", file)
				helpers.Ensure(auditArgs(file)...)
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(
					"--store", storeNextTo(data.Labels().Get("file")), "cache", "list", "--format", "json",
				)
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains(`"file_hash"`),
						expectContains(`"verdict"`),
					),
				}
			},
		},
		{
			Description: "unknown hash is not cached",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.Genuine16bit44k(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(
					"--store", storeNextTo(data.Labels().Get("file")), "cache", "show", "00000000000000000000000000000000",
				)
			},
			Expected: test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
	}

	testCase.Run(t)
}

func TestFingerprintCLI(t *testing.T) {
	testCase := setup()

	testCase.SubTests = []*test.Case{
		{
			Description: "fingerprint without arguments fails",
			Command:     test.Command("fingerprint"),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "fingerprint prints the hash",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.Genuine16bit44k(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command("fingerprint", "--format", "json", data.Labels().Get("file"))
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains(`"hash"`),
						expectContains(`"sampled"`),
					),
				}
			},
		},
	}

	testCase.Run(t)
}
