/*
Copyright © 2022 - 2024 SUSE LLC

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

package bootassembler

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"path/filepath"
	"time"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// mokKeyBits is the RSA key size for the Secure Boot signing key.
const mokKeyBits = 2048

// mokValidity is the self-signed certificate's validity window.
const mokValidity = 10 * 365 * 24 * time.Hour

// GenerateMOKKeys implements Step C: it writes MOK.key (RSA private key,
// mode 0400), MOK.crt (self-signed X.509 PEM), and MOK.cer (DER form) under
// constants.SecurebootDir. That path carries no target-root prefix, so the
// keys are written on the host running the installer and are not copied
// into the installed system.
func GenerateMOKKeys(files *fileops.FileOps) error {
	if err := files.CreateDirectory(constants.SecurebootDir); err != nil {
		return err
	}

	key, err := rsa.GenerateKey(rand.Reader, mokKeyBits)
	if err != nil {
		return errors.Wrap(err, "generate MOK RSA key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return errors.Wrap(err, "generate certificate serial")
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: constants.MOKCommonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(mokValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
		SubjectKeyId:          uuid.New().NodeID(),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return errors.Wrap(err, "self-sign MOK certificate")
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := files.WriteFile(filepath.Join(constants.SecurebootDir, constants.MOKKeyFile), keyPEM, constants.PrivKeyPerm); err != nil {
		return err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := files.WriteFile(filepath.Join(constants.SecurebootDir, constants.MOKCertFile), certPEM, 0644); err != nil {
		return err
	}

	return files.WriteFile(filepath.Join(constants.SecurebootDir, constants.MOKDerFile), der, 0644)
}
