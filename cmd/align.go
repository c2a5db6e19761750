/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/interlinear/internal/aligner"
)

var alignLang string

var alignCmd = &cobra.Command{
	Use:   "align <translation> <transliteration>",
	Short: "Show how a translation and its transliteration are paired",
	Long: `Run token-count alignment on one sentence pair and print the result,
followed by the positional pairing used by the reader when counts still
differ.

Example:
  interlinear align "你好世界" "ni hao shi jie" --lang zh`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		tok, err := buildTokenizer(cfg)
		if err != nil {
			return err
		}

		translation, transliteration := args[0], args[1]
		before := tok.Tokenize(translation, alignLang)
		fmt.Printf("Input:   %d / %d tokens\n", len(before), len(strings.Fields(transliteration)))

		tr, tl, changed := aligner.New(tok).AlignTokenCounts(translation, transliteration, alignLang)
		trTokens := tok.Tokenize(tr, alignLang)
		tlTokens := strings.Fields(tl)
		if changed {
			fmt.Printf("Aligned: %d / %d tokens\n", len(trTokens), len(tlTokens))
			fmt.Printf("  translation:     %s\n", tr)
			fmt.Printf("  transliteration: %s\n", tl)
		} else {
			fmt.Println("Aligned: unchanged")
		}

		fmt.Println("Pairs:")
		for i, p := range aligner.ForceAlignByPosition(trTokens, tlTokens) {
			fmt.Printf("  %2d  %s  |  %s\n", i+1,
				strings.Join(p.Translation, " "), strings.Join(p.Transliteration, " "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alignCmd)
	alignCmd.Flags().StringVarP(&alignLang, "lang", "l", "", "Language code of the translation (e.g. zh, ja, ru)")
	alignCmd.MarkFlagRequired("lang")
}
