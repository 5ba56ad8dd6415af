package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"car-dashboard/predictor"
)

var predictInput = predictor.DefaultInput()

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the price of one car configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pred, _, err := loadModel(cfg.ModelPath)
		if err != nil {
			return err
		}
		if pred == nil {
			return fmt.Errorf("no model artifact at %s", cfg.ModelPath)
		}

		price, err := pred.Predict(cmd.Context(), predictInput)
		if errors.Is(err, predictor.ErrUnseenLabel) {
			fmt.Fprintln(cmd.ErrOrStderr(), predictor.UnseenLabelMessage)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Estimated Price: $%.2f\n", price)
		return nil
	},
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictInput.Car, "car", "", "brand")
	f.StringVar(&predictInput.Body, "body", "", "body type")
	f.Float64Var(&predictInput.Mileage, "mileage", predictInput.Mileage, "mileage in thousands")
	f.Float64Var(&predictInput.EngV, "engv", predictInput.EngV, "engine volume in litres")
	f.StringVar(&predictInput.EngType, "engtype", "", "engine type")
	f.StringVar(&predictInput.Registration, "registration", predictInput.Registration, "yes or no")
	f.IntVar(&predictInput.Year, "year", predictInput.Year, "production year")
	f.StringVar(&predictInput.Drive, "drive", "", "drive type")
	for _, name := range []string{"car", "body", "engtype", "drive"} {
		_ = predictCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(predictCmd)
}
