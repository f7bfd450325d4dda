/*
Copyright © 2023 OpenTDF opentdf@virtru.com
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	kascrypto "github.com/opentdf/kas/internal/crypto"
)

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate KAS key pairs",
	Long: `Generate the RSA and EC key pairs the service unwraps with.
Writes kas-private.pem, kas-public.pem, kas-ec-private.pem and
kas-ec-public.pem into the output directory.`,
	Run: keygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().String("output", ".", "Output directory")
	keygenCmd.Flags().Int("keysize", 2048, "RSA key size in bits")
}

func keygen(cmd *cobra.Command, args []string) {
	outDir, err := cmd.Flags().GetString("output")
	if err != nil {
		log.Fatal(err)
	}
	keySize, err := cmd.Flags().GetInt("keysize")
	if err != nil {
		log.Fatal(err)
	}

	rsaPriv, rsaPub, err := kascrypto.GenerateRSAKeysPem(keySize)
	if err != nil {
		log.Fatal(err)
	}
	ecPriv, ecPub, err := kascrypto.GenerateECKeysPem()
	if err != nil {
		log.Fatal(err)
	}

	files := map[string][]byte{
		"kas-private.pem":    rsaPriv,
		"kas-public.pem":     rsaPub,
		"kas-ec-private.pem": ecPriv,
		"kas-ec-public.pem":  ecPub,
	}
	for name, pemBytes := range files {
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
			log.Fatal(err)
		}
		fmt.Println(path)
	}
}
