package catalog

import (
	"context"
	"fmt"
)

// DefaultEntries is the ICD-10-CM subset installed by `catalog seed`. It covers
// every code the fallback predictor can emit.
func DefaultEntries() []*Entry {
	return []*Entry{
		{Code: "E11.9", Description: "Type 2 diabetes mellitus without complications", Category: "E11", Chapter: "Endocrine, nutritional and metabolic diseases"},
		{Code: "E11.65", Description: "Type 2 diabetes mellitus with hyperglycemia", Category: "E11", Chapter: "Endocrine, nutritional and metabolic diseases"},
		{Code: "E10.9", Description: "Type 1 diabetes mellitus without complications", Category: "E10", Chapter: "Endocrine, nutritional and metabolic diseases"},
		{Code: "G43.909", Description: "Migraine, unspecified, not intractable, without status migrainosus", Category: "G43", Chapter: "Diseases of the nervous system"},
		{Code: "G43.009", Description: "Migraine without aura, not intractable, without status migrainosus", Category: "G43", Chapter: "Diseases of the nervous system"},
		{Code: "I10", Description: "Essential (primary) hypertension", Category: "I10", Chapter: "Diseases of the circulatory system"},
		{Code: "I11.9", Description: "Hypertensive heart disease without heart failure", Category: "I11", Chapter: "Diseases of the circulatory system"},
		{Code: "I21.9", Description: "Acute myocardial infarction, unspecified", Category: "I21", Chapter: "Diseases of the circulatory system"},
		{Code: "J06.9", Description: "Acute upper respiratory infection, unspecified", Category: "J06", Chapter: "Diseases of the respiratory system"},
		{Code: "J18.9", Description: "Pneumonia, unspecified organism", Category: "J18", Chapter: "Diseases of the respiratory system"},
		{Code: "J45.909", Description: "Unspecified asthma, uncomplicated", Category: "J45", Chapter: "Diseases of the respiratory system"},
		{Code: "J45.901", Description: "Unspecified asthma with (acute) exacerbation", Category: "J45", Chapter: "Diseases of the respiratory system"},
		{Code: "J44.9", Description: "Chronic obstructive pulmonary disease, unspecified", Category: "J44", Chapter: "Diseases of the respiratory system"},
		{Code: "K35.80", Description: "Unspecified acute appendicitis", Category: "K35", Chapter: "Diseases of the digestive system"},
		{Code: "N39.0", Description: "Urinary tract infection, site not specified", Category: "N39", Chapter: "Diseases of the genitourinary system"},
		{Code: "A09", Description: "Infectious gastroenteritis and colitis, unspecified", Category: "A09", Chapter: "Certain infectious and parasitic diseases"},
		{Code: "R07.9", Description: "Chest pain, unspecified", Category: "R07", Chapter: "Symptoms, signs and abnormal clinical findings"},
		{Code: "R50.9", Description: "Fever, unspecified", Category: "R50", Chapter: "Symptoms, signs and abnormal clinical findings"},
		{Code: "R51.9", Description: "Headache, unspecified", Category: "R51", Chapter: "Symptoms, signs and abnormal clinical findings"},
		{Code: "R69", Description: "Illness, unspecified", Category: "R69", Chapter: "Symptoms, signs and abnormal clinical findings"},
	}
}

// Seed upserts entries into repo and returns how many were written.
func Seed(ctx context.Context, repo Repository, entries []*Entry) (int, error) {
	for i, e := range entries {
		if err := repo.Upsert(ctx, e); err != nil {
			return i, fmt.Errorf("seed catalog: %w", err)
		}
	}
	return len(entries), nil
}
