package access

import "fmt"

// Kiosk display strings.
const (
	StatusWaiting        = "En attente - Positionnez-vous devant la caméra..."
	StatusCameraError    = "Erreur de lecture caméra"
	StatusDetectionError = "Erreur de détection des visages"
	StatusMatchError     = "Erreur d'accès au registre des élèves"
	StatusUnrecognized   = "✗ Visage non reconnu - Accès refusé"
	NoEventYet           = "Aucun passage détecté."
)

func statusGranted(name string, balance float64) string {
	return fmt.Sprintf("✓ Accès autorisé : %s | Solde : %.2f €", name, balance)
}

func statusInsufficient(name string, balance float64) string {
	return fmt.Sprintf("⚠ Solde insuffisant : %s (%.2f €)", name, balance)
}

func statusRecognized(name string, balance float64) string {
	return fmt.Sprintf("Reconnu : %s | Solde : %.2f €", name, balance)
}

func statusRegistryError(name string) string {
	return fmt.Sprintf("Erreur d'enregistrement du passage : %s", name)
}

func lastEvent(name, clock string) string {
	return fmt.Sprintf("Dernier passage : %s à %s", name, clock)
}
